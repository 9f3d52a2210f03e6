package goMFA

import (
	"context"
	"errors"
	"time"
)

// Authenticate verifies primary credentials and returns the user ID.
//
// An unknown identifier is reported as ErrInvalidCredentials, with the same
// verification cost as a wrong secret. ErrAccountLocked is only returned
// once the secret has verified.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	user, err := e.flows.Authenticate(ctx, creds.Identifier, creds.Secret)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	return user.ID, nil
}

// Login authenticates creds. When MFA applies (MFA.Required or the user's
// MFAEnabled flag) a challenge is issued on the user's preferred channel and
// the result carries a signed PendingMFA reference for [Engine.CompleteMFA].
// Otherwise the result carries the session.
//
// A locked account reports ErrAccountLocked only once the secret verifies; a
// wrong secret on a locked account yields ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	outcome, err := e.flows.Login(ctx, creds.Identifier, creds.Secret)
	if err != nil {
		return nil, err
	}

	if !outcome.MFARequired {
		return &LoginResult{
			Session: &AuthSession{
				UserID:          outcome.UserID,
				AuthenticatedAt: outcome.AuthenticatedAt,
				Methods:         []string{"password"},
			},
		}, nil
	}
	return &LoginResult{
		MFARequired: true,
		PendingMFA:  outcome.Reference,
		Channel:     Channel(outcome.Channel),
		ExpiresAt:   outcome.ExpiresAt,
	}, nil
}

// CompleteMFA finishes a login started by [Engine.Login]. reference must be
// the PendingMFA value; a forged or expired one yields ErrMFAReferenceInvalid.
// A reference to a replaced challenge yields ErrNoActiveChallenge.
func (e *Engine) CompleteMFA(ctx context.Context, reference, code string) (*AuthSession, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	outcome, err := e.flows.CompleteMFA(ctx, reference, code)
	if err != nil {
		return nil, err
	}
	return &AuthSession{
		UserID:          outcome.UserID,
		AuthenticatedAt: outcome.AuthenticatedAt,
		Methods:         []string{"password", "otp:" + Channel(outcome.Channel).String()},
	}, nil
}
