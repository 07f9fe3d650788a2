// Package internal groups implementation packages that are not part of the
// public authflow API:
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - rate: fixed-window login and forgot-password limiters
//   - stores: Redis token-id ledgers for reset consumption and logout
package internal
