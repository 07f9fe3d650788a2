// Package jwt issues and verifies the signed credential tokens used by authflow.
//
// Three token kinds exist (access, refresh, reset). Each kind is served by its own
// [Manager] with its own secret and TTL, and every token carries a "knd" claim so a
// token of one kind is rejected by a manager of another kind even when secrets are
// shared. Verification failures are reported as [ErrTokenInvalid] or [ErrTokenExpired];
// the signature is always checked before expiry.
package jwt
