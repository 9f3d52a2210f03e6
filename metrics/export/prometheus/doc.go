// Package prometheus renders goMFA counters and latency histograms in the
// Prometheus text exposition format.
//
// Mount [Exporter.Handler] on a route of your choice; nothing is registered
// globally. Counters are grouped into labelled families such as
// gomfa_otp_total{outcome="validated"}.
package prometheus
