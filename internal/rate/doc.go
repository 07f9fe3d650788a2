// Package rate provides Redis-backed fixed-window limiters for the login and
// forgot-password flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:   login failures per identifier
//   - ali:  login failures per IP
//   - afp:  forgot-password requests per identifier
//   - afpi: forgot-password requests per IP
//
// Identifiers are trimmed and lower-cased before keying. Login counts only
// failures and is cleared on success; forgot-password counts every request.
package rate
