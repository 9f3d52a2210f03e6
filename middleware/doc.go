// Package middleware exposes HTTP adapters for the goMFA login flow.
//
// # Handlers
//
//   - [RequestContext] stamps client IP, user agent and request ID onto the
//     request context so audit events carry them.
//   - [Login] accepts {"identifier","secret"} and returns either a session or
//     a pending MFA reference.
//   - [CompleteMFA] accepts {"reference","code"} and returns the session.
//
// Error responses are JSON {"error": "<label>"} with the status chosen by
// [StatusFor]. Unknown users and wrong passwords share a response.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not
// implement authentication logic itself and never touches Redis.
package middleware
