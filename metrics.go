package goMFA

import (
	internalmetrics "github.com/MrEthical07/goMFA/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess counts primary authentications that finished without MFA.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts rejected primary authentications.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricLoginLocked counts correct passwords refused because the account is locked.
	MetricLoginLocked = internalmetrics.MetricLoginLocked
	// MetricMFALoginRequired counts logins that opened an MFA challenge.
	MetricMFALoginRequired = internalmetrics.MetricMFALoginRequired
	// MetricMFALoginSuccess counts completed MFA logins.
	MetricMFALoginSuccess = internalmetrics.MetricMFALoginSuccess
	// MetricMFALoginFailure counts failed MFA completions.
	MetricMFALoginFailure = internalmetrics.MetricMFALoginFailure
	// MetricMFAReferenceInvalid counts unparseable or expired MFA references.
	MetricMFAReferenceInvalid = internalmetrics.MetricMFAReferenceInvalid
	MetricOTPIssued           = internalmetrics.MetricOTPIssued
	MetricOTPResendThrottled  = internalmetrics.MetricOTPResendThrottled
	MetricOTPValidated        = internalmetrics.MetricOTPValidated
	MetricOTPIncorrect        = internalmetrics.MetricOTPIncorrect
	MetricOTPExpired          = internalmetrics.MetricOTPExpired
	MetricOTPReuseRejected    = internalmetrics.MetricOTPReuseRejected
	MetricOTPNoChallenge      = internalmetrics.MetricOTPNoChallenge
	// MetricAccountLocked counts lockouts triggered by OTP failures.
	MetricAccountLocked = internalmetrics.MetricAccountLocked
	// MetricAccountUnlocked counts lock removals, manual or by expiry.
	MetricAccountUnlocked        = internalmetrics.MetricAccountUnlocked
	MetricDispatchFailure        = internalmetrics.MetricDispatchFailure
	MetricInvalidAddress         = internalmetrics.MetricInvalidAddress
	MetricPasswordPolicyRejected = internalmetrics.MetricPasswordPolicyRejected
	// MetricValidateLatency is the histogram of Validate/CompleteMFA latency.
	MetricValidateLatency = internalmetrics.MetricValidateLatency
	// MetricDispatchLatency is the histogram of transport delivery latency.
	MetricDispatchLatency = internalmetrics.MetricDispatchLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
