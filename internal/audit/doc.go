// Package audit relays security events from the engine to a [Sink] on a
// background goroutine.
//
// [Dispatcher] buffers events and either drops or blocks when the buffer is
// full. Sinks shipped here write to a channel, newline-delimited JSON or a
// slog.Logger. The engine decides which events exist; this package only
// moves them.
package audit
