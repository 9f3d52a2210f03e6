// Package goMFA provides an embeddable authentication core that pairs primary
// credential verification with a one-time-password (OTP) second factor
// delivered over email or mobile channels.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goMFA is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (OTPChallenge, LoginResult, AuthSession, MetricsSnapshot). Flow orchestration, challenge
// encoding, per-user locking and audit dispatch live under internal/ and are never
// exported.
//
// The user store and the notification transports are collaborators supplied by the
// caller through [UserRepository] and [Transport]. Reference adapters live in the
// userstore and transport sub-packages. JSON HTTP handlers are in middleware and
// metric exporters under metrics/export.
//
// # Challenge lifecycle
//
// Each user owns at most one OTP challenge. Issuing a challenge overwrites the previous
// one. A challenge moves from pending to consumed or expired; repeated incorrect codes
// lock the account. All transitions for one user are serialized, and consumption is a
// compare-and-swap against the challenge store, so a code is accepted at most once.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Log or persist plaintext OTP codes or secrets.
//   - Import any sub-package that re-imports goMFA (no import cycles).
package goMFA
