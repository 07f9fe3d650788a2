// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Stored bcrypt hashes ($2a$, $2b$, $2y$) still verify. [Argon2.NeedsUpgrade]
// reports true for them and for Argon2id hashes produced with weaker
// parameters, so the caller can re-hash after the next successful login.
//
// This package owns hashing and verification only. Password policy beyond
// length bounds (reuse, required change) is enforced by the Engine. It never
// stores or logs passwords.
package password
