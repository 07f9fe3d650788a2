// Package httpapi exposes the engine's auth flows over HTTP.
//
// Routes, relative to Config.Prefix (default /api/v1/auth):
//
//	POST /login            {"email","password"} -> access token, refresh cookie
//	POST /refresh-token    refresh cookie -> new access token
//	POST /change-password  bearer access token + {"oldPassword","newPassword"}
//	POST /forgot-password  {"email"}
//	POST /reset-password   reset token in Authorization + {"password"}
//	POST /logout           refresh cookie -> revoked, cookie cleared
//
// Every response uses the envelope {statusCode, success, message, data}.
// [StatusFor] is the single place that maps engine errors to HTTP statuses.
//
// # What this package must NOT do
//
//   - Make authentication decisions. Handlers only translate HTTP to engine
//     calls and back.
//   - Echo backend error details to clients.
package httpapi
