// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueChallenge, RunValidateOTP, RunLogin, etc.) accepts a
// typed dependency struct and returns results without side-effects beyond those
// dependencies. This keeps the Engine type thin and lets the state machine be tested
// with fake repositories and stores.
//
// Flow functions coordinate calls to the user repository, the challenge store, the
// per-user locker, the dispatcher, audit and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goMFA (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
