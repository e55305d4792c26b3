// Package common contains shared constants and sentinel errors used across
// momentkeeper components.
package common

// AppTokenHeaderName carries the application-identity token on every call
// except the liveness check.
const AppTokenHeaderName = "X-App-Token"

// UserTokenHeaderName carries the user-identity token (a signed JWT issued
// by the server on registration).
const UserTokenHeaderName = "X-User-Token"

// RetryAfterHeaderName is set by the server on rate-limited responses.
const RetryAfterHeaderName = "Retry-After"
