// Package metrics holds the engine's in-process counters and latency
// histograms.
//
// Counters live in cache-line padded slots and are updated with sync/atomic.
// The two latency histograms use fixed buckets from 5ms to 500ms plus +Inf.
// Nothing here performs I/O; exporters under metrics/export read [Snapshot].
package metrics
