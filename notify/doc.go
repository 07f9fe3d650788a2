// Package notify delivers password reset links produced by
// [authflow.Engine.ForgotPassword].
//
//   - [LogNotifier] writes delivery records to a slog logger, for development.
//   - [WebhookNotifier] POSTs a JSON payload to a mail or messaging service
//     and retries transient failures.
//
// Reset tokens are credentials. Neither notifier logs them unless told to.
package notify
