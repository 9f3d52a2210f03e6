// Package locks serializes state changes for a single user.
//
// Keyed is the in-process implementation. Redis is a lease lock for
// deployments where several processes share one challenge store; its lease
// bounds how long a crashed holder can block a user.
package locks
