// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunResetPassword, etc.) accepts a
// typed dependency struct of function values and host-level sentinel errors,
// and has no side effects beyond those dependencies. The root package builds
// the dependency structs once and keeps the Engine type thin.
//
// Flow functions coordinate the token managers, user provider, limiter,
// ledgers, audit and metrics. They do not own any of these resources, hold no
// state between calls and never import the root package.
package flows
