// Package jwt signs and verifies the short-lived pending-MFA reference handed
// to callers between the password step and the OTP step of a login.
package jwt
