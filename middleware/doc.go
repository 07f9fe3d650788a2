// Package middleware adapts engine access-token validation to net/http.
//
//   - [Guard] verifies the bearer access token and stores the principal.
//   - [RequireRole] restricts a route to principals with given roles.
//   - [ClientIP] records the caller address for limiters and audit events.
//
// # What this package must NOT do
//
//   - Parse or sign tokens itself. Guard delegates to ValidateAccess.
//   - Touch Redis or the user store.
package middleware
