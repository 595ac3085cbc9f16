package internaldefs

import (
	"github.com/tradebook/authcore"
)

// CounterDef names one engine counter for external exposition.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in a stable order. Exporters
// iterate this slice so both backends agree on names and ordering.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password logins."},
	{ID: authcore.MetricLoginThrottled, Name: "authcore_login_throttled_total", Help: "Logins refused by the attempt limiter."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed token rotations."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "All-session logouts."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Completed registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations refused for a taken email."},
	{ID: authcore.MetricOTPSent, Name: "authcore_otp_sent_total", Help: "One-time codes delivered."},
	{ID: authcore.MetricOTPVerified, Name: "authcore_otp_verified_total", Help: "One-time codes verified."},
	{ID: authcore.MetricOTPRejected, Name: "authcore_otp_rejected_total", Help: "One-time codes rejected."},
	{ID: authcore.MetricResetRequested, Name: "authcore_reset_requested_total", Help: "Password reset links issued."},
	{ID: authcore.MetricResetCompleted, Name: "authcore_reset_completed_total", Help: "Password resets completed."},
	{ID: authcore.MetricResetRejected, Name: "authcore_reset_rejected_total", Help: "Password resets rejected."},
	{ID: authcore.MetricUserBlocked, Name: "authcore_user_blocked_total", Help: "Accounts blocked."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Sessions created."},
	{ID: authcore.MetricSessionPruned, Name: "authcore_session_pruned_total", Help: "Sessions removed by the per-user cap or idle expiry."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_validate_failure_total", Help: "Access tokens rejected."},
	{ID: authcore.MetricHeartbeat, Name: "authcore_heartbeat_total", Help: "Session activity heartbeats."},
}

// Counter reads one counter out of an engine snapshot, tolerating short
// snapshots from older engines.
func Counter(snapshot []uint64, id authcore.MetricID) uint64 {
	if int(id) >= len(snapshot) {
		return 0
	}
	return snapshot[id]
}
