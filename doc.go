// Package authflow provides a first-party authentication core: password login
// issuing a short-lived access token and a long-lived refresh token, refresh,
// password change, forgot/reset password and logout.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types such as [LoginResult] and [Principal].
// Flow orchestration, rate limiting, token ledgers and audit dispatch live
// under internal/ and are never exported. Persistence and delivery are
// reached only through [UserProvider] and [Notifier].
//
// # What this package must NOT do
//
//   - Log or expose signing secrets, passwords or tokens.
//   - Expose Redis clients or internal stores in its public API.
//   - Map errors to transport statuses. That belongs to httpapi.
//
// # Performance contract
//
// ValidateAccess is the hot path. It verifies the signature and expiry of an
// access token without any Redis or provider round-trip.
package authflow
