// Package password verifies stored password hashes and evaluates the password
// complexity policy.
//
// Hashes are argon2id PHC strings produced by [Argon2.Hash]. bcrypt hashes
// ($2a$, $2b$, $2y$) are accepted for verification so existing user stores can
// be adopted without a migration. [Policy.Check] is a pure function of its
// inputs.
package password
