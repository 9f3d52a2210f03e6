package internaldefs

import (
	goMFA "github.com/MrEthical07/goMFA"
)

// Series is one labelled sample of a counter family.
type Series struct {
	ID    goMFA.MetricID
	Value string
}

// Family groups engine counters under one exported name. Label is empty for
// single-series families.
type Family struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// Families lists every exported counter family in rendering order.
var Families = []Family{
	{
		Name:  "gomfa_login_total",
		Help:  "Primary authentication attempts by result.",
		Label: "result",
		Series: []Series{
			{goMFA.MetricLoginSuccess, "success"},
			{goMFA.MetricLoginFailure, "failure"},
			{goMFA.MetricLoginLocked, "locked"},
		},
	},
	{
		Name:  "gomfa_mfa_login_total",
		Help:  "Second-factor login steps by result.",
		Label: "result",
		Series: []Series{
			{goMFA.MetricMFALoginRequired, "required"},
			{goMFA.MetricMFALoginSuccess, "success"},
			{goMFA.MetricMFALoginFailure, "failure"},
			{goMFA.MetricMFAReferenceInvalid, "reference_invalid"},
		},
	},
	{
		Name:  "gomfa_otp_total",
		Help:  "OTP challenge events by outcome.",
		Label: "outcome",
		Series: []Series{
			{goMFA.MetricOTPIssued, "issued"},
			{goMFA.MetricOTPResendThrottled, "resend_throttled"},
			{goMFA.MetricOTPValidated, "validated"},
			{goMFA.MetricOTPIncorrect, "incorrect"},
			{goMFA.MetricOTPExpired, "expired"},
			{goMFA.MetricOTPReuseRejected, "reused"},
			{goMFA.MetricOTPNoChallenge, "no_challenge"},
		},
	},
	{
		Name:  "gomfa_account_lock_total",
		Help:  "Account lock transitions.",
		Label: "action",
		Series: []Series{
			{goMFA.MetricAccountLocked, "locked"},
			{goMFA.MetricAccountUnlocked, "unlocked"},
		},
	},
	{
		Name:  "gomfa_dispatch_failure_total",
		Help:  "OTP deliveries that did not reach the transport or failed there.",
		Label: "reason",
		Series: []Series{
			{goMFA.MetricDispatchFailure, "transport"},
			{goMFA.MetricInvalidAddress, "invalid_address"},
		},
	},
	{
		Name:   "gomfa_password_policy_rejected_total",
		Help:   "Passwords rejected by the complexity policy.",
		Series: []Series{{goMFA.MetricPasswordPolicyRejected, ""}},
	},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricValidateLatency, Name: "gomfa_validate_latency_seconds", Help: "OTP validation latency."},
	{ID: goMFA.MetricDispatchLatency, Name: "gomfa_dispatch_latency_seconds", Help: "OTP delivery latency."},
}

// AuditDroppedName is the counter for events lost to audit backpressure.
const AuditDroppedName = "gomfa_audit_dropped_total"

// BucketBounds are the "le" labels of the in-process buckets.
var BucketBounds = [...]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Cumulative converts per-bucket counts into running totals, padding or
// truncating raw to len(BucketBounds).
func Cumulative(raw []uint64) [len(BucketBounds)]uint64 {
	var out [len(BucketBounds)]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
