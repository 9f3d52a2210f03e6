// Package stores persists OTP challenge records.
//
// Records are keyed by user ID so a user owns at most one challenge; Put
// overwrites any previous record. State transitions go through Swap, a
// compare-and-set on the full encoded record, which is the exactly-once
// guarantee for consumption regardless of the caller's locking.
package stores
