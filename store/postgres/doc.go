// Package postgres implements [authflow.UserProvider] on PostgreSQL with pgx.
//
// Emails are matched case-insensitively. Missing users are reported with
// errors matching [authflow.ErrNotFound]; every other failure is wrapped with
// an oops code and left for the engine to treat as a store outage.
//
// The schema ships as embedded goose migrations applied by [Migrate].
package postgres
