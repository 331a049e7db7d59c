package internaldefs

import (
	"strconv"

	authclient "github.com/versini-org/auth-client"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authclient.MetricSessionRestored, Name: "authclient_session_restored_total", Help: "Sessions restored from the token store at bootstrap."},
	{ID: authclient.MetricSessionExpired, Name: "authclient_session_expired_total", Help: "Persisted identity tokens rejected at bootstrap."},
	{ID: authclient.MetricLoginSuccess, Name: "authclient_login_success_total", Help: "Successful logins."},
	{ID: authclient.MetricLoginFailure, Name: "authclient_login_failure_total", Help: "Failed logins."},
	{ID: authclient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Successful access token refreshes."},
	{ID: authclient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Failed access token refreshes."},
	{ID: authclient.MetricRefreshShared, Name: "authclient_refresh_shared_total", Help: "Callers that joined an in-flight refresh."},
	{ID: authclient.MetricAccessTokenReused, Name: "authclient_access_token_reused_total", Help: "Access token reads served without a refresh."},
	{ID: authclient.MetricSessionInvalidated, Name: "authclient_session_invalidated_total", Help: "Session invalidations."},
	{ID: authclient.MetricLogout, Name: "authclient_logout_total", Help: "Logout operations."},
	{ID: authclient.MetricLogoutNotifyFailure, Name: "authclient_logout_notify_failure_total", Help: "Logout notifications that exhausted their retries."},
}

var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricLoginLatency, Name: "authclient_login_latency_seconds", Help: "Login latency histogram."},
	{ID: authclient.MetricRefreshLatency, Name: "authclient_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authclient_audit_dropped_total"

// BucketCount is the number of histogram buckets including +Inf.
var BucketCount = len(authclient.HistogramBounds()) + 1

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	bounds := authclient.HistogramBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

// BucketLabels returns the "le" value of each bucket, "+Inf" last.
func BucketLabels() []string {
	bounds := UpperBoundsSeconds()
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a slice of exactly BucketCount entries.
func NormalizeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	copy(out, raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, len(raw))
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
