package internaldefs

import (
	"github.com/eventlyze/authflow"
)

// Namespace prefixes every exported metric name.
const Namespace = "authflow"

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricLoginSuccess, Name: "authflow_login_success_total", Help: "Successful logins."},
	{ID: authflow.MetricLoginFailure, Name: "authflow_login_failure_total", Help: "Failed logins."},
	{ID: authflow.MetricLoginRateLimited, Name: "authflow_login_rate_limited_total", Help: "Logins rejected by the login limiter."},
	{ID: authflow.MetricPasswordUpgraded, Name: "authflow_password_upgraded_total", Help: "Stored hashes re-hashed with current parameters on login."},
	{ID: authflow.MetricRefreshSuccess, Name: "authflow_refresh_success_total", Help: "Access tokens issued from a refresh token."},
	{ID: authflow.MetricRefreshFailure, Name: "authflow_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authflow.MetricRefreshRevoked, Name: "authflow_refresh_revoked_total", Help: "Refresh attempts with a token revoked by logout."},
	{ID: authflow.MetricPasswordChangeSuccess, Name: "authflow_password_change_success_total", Help: "Successful password changes."},
	{ID: authflow.MetricPasswordChangeFailure, Name: "authflow_password_change_failure_total", Help: "Failed password changes."},
	{ID: authflow.MetricPasswordResetRequest, Name: "authflow_password_reset_request_total", Help: "Accepted forgot-password requests."},
	{ID: authflow.MetricPasswordResetRateLimited, Name: "authflow_password_reset_rate_limited_total", Help: "Forgot-password requests rejected by the limiter."},
	{ID: authflow.MetricPasswordResetNotifyFailure, Name: "authflow_password_reset_notify_failure_total", Help: "Reset links the notifier failed to deliver."},
	{ID: authflow.MetricPasswordResetSuccess, Name: "authflow_password_reset_success_total", Help: "Successful password resets."},
	{ID: authflow.MetricPasswordResetFailure, Name: "authflow_password_reset_failure_total", Help: "Failed password resets."},
	{ID: authflow.MetricPasswordResetReplay, Name: "authflow_password_reset_replay_total", Help: "Reset tokens presented after they were used."},
	{ID: authflow.MetricLogout, Name: "authflow_logout_total", Help: "Refresh tokens revoked by logout."},
	{ID: authflow.MetricValidateSuccess, Name: "authflow_validate_success_total", Help: "Access tokens that validated."},
	{ID: authflow.MetricValidateFailure, Name: "authflow_validate_failure_total", Help: "Access tokens that failed validation."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricValidateLatency, Name: "authflow_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName is the counter exported for [authflow.Engine.AuditDropped].
const AuditDroppedName = "authflow_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events that never reached the audit sink."

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = 8

// HistogramBounds are the finite upper bounds in seconds. The last bucket
// is +Inf and has no entry.
var HistogramBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters that cannot carry an
// le label.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
