// Package otel publishes goMFA metrics through an OpenTelemetry Meter.
//
// Each counter family becomes one Int64ObservableCounter with its label as
// an attribute. Each latency histogram becomes a pair of gauges:
// <name>_bucket with an "le" attribute and <name>_count. The caller owns the
// MeterProvider.
package otel
