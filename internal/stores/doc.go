// Package stores provides Redis-backed, short-lived records for the
// authentication flows.
//
// [TokenLedger] remembers token ids (jti) until the token's natural expiry.
// The engine runs two instances: one consumes password reset tokens so each
// verifies at most once, the other holds refresh tokens revoked by logout.
//
// This package owns persistence only. It does not issue or verify tokens and
// never stores token values, only their ids.
package stores
