// Package userstore provides reference implementations of
// goMFA.UserRepository.
//
// [Memory] keeps users in process memory and suits tests and single-instance
// development. [Redis] stores each user as a JSON document with a secondary
// identifier index and applies Lock/Unlock as optimistic WATCH transactions.
//
// Identifiers are matched case-insensitively after trimming spaces.
package userstore
