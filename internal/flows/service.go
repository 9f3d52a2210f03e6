package flows

import "context"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Challenge ChallengeDeps
	Login     LoginDeps
}

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring. The login
// deps are bound to the challenge flows of the same service.
func New(deps Deps) Service {
	s := Service{deps: deps}
	if s.deps.Login.LockGate == nil {
		s.deps.Login.LockGate = s.LockGate
	}
	if s.deps.Login.IssueChallenge == nil {
		s.deps.Login.IssueChallenge = s.IssueChallenge
	}
	if s.deps.Login.ValidateOTP == nil {
		s.deps.Login.ValidateOTP = s.ValidateOTP
	}
	return s
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Challenge.FindUser != nil
}

func (s Service) LockGate(ctx context.Context, userID string) error {
	return RunLockGate(ctx, userID, s.deps.Challenge)
}

func (s Service) IssueChallenge(ctx context.Context, userID string, channel uint8) (*IssuedChallenge, error) {
	return RunIssueChallenge(ctx, userID, channel, s.deps.Challenge)
}

func (s Service) ValidateOTP(ctx context.Context, userID, challengeID, code string) error {
	return RunValidateOTP(ctx, userID, challengeID, code, s.deps.Challenge)
}

func (s Service) DisableResend(ctx context.Context, userID string) error {
	return RunDisableResend(ctx, userID, s.deps.Challenge)
}

func (s Service) Unlock(ctx context.Context, userID string) error {
	return RunUnlock(ctx, userID, s.deps.Challenge)
}

func (s Service) ChallengeStatus(ctx context.Context, userID string) (ChallengeStatus, int, error) {
	return RunChallengeStatus(ctx, userID, s.deps.Challenge)
}

func (s Service) Authenticate(ctx context.Context, identifier, secret string) (*UserRecord, error) {
	return RunAuthenticate(ctx, identifier, secret, s.deps.Login)
}

func (s Service) Login(ctx context.Context, identifier, secret string) (*LoginOutcome, error) {
	return RunLogin(ctx, identifier, secret, s.deps.Login)
}

func (s Service) CompleteMFA(ctx context.Context, reference, code string) (*LoginOutcome, error) {
	return RunCompleteMFA(ctx, reference, code, s.deps.Login)
}
