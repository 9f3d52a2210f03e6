package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

const maxBodyBytes = 4 << 10

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type completeRequest struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
}

type sessionResponse struct {
	UserID          string    `json:"user_id"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	Methods         []string  `json:"methods"`
}

type loginResponse struct {
	MFARequired bool             `json:"mfa_required"`
	Reference   string           `json:"reference,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	Session     *sessionResponse `json:"session,omitempty"`
}

// Login handles the password step.
func Login(engine *goMFA.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		if !decode(w, r, &body) {
			return
		}

		result, err := engine.Login(r.Context(), goMFA.Credentials{Identifier: body.Identifier, Secret: body.Secret})
		if err != nil {
			writeError(w, engine, err)
			return
		}

		resp := loginResponse{MFARequired: result.MFARequired}
		if result.MFARequired {
			expires := result.ExpiresAt
			resp.Reference = result.PendingMFA
			resp.Channel = result.Channel.String()
			resp.ExpiresAt = &expires
		} else {
			resp.Session = toSession(result.Session)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CompleteMFA handles the OTP step.
func CompleteMFA(engine *goMFA.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body completeRequest
		if !decode(w, r, &body) {
			return
		}

		session, err := engine.CompleteMFA(r.Context(), body.Reference, body.Code)
		if err != nil {
			writeError(w, engine, err)
			return
		}
		writeJSON(w, http.StatusOK, toSession(session))
	}
}

// StatusFor maps an engine error to an HTTP status and a stable label.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goMFA.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, goMFA.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, goMFA.ErrIncorrectCode):
		return http.StatusUnauthorized, "incorrect_code"
	case errors.Is(err, goMFA.ErrOTPExpired):
		return http.StatusUnauthorized, "otp_expired"
	case errors.Is(err, goMFA.ErrOTPAlreadyUsed):
		return http.StatusUnauthorized, "otp_already_used"
	case errors.Is(err, goMFA.ErrNoActiveChallenge):
		return http.StatusUnauthorized, "no_active_challenge"
	case errors.Is(err, goMFA.ErrMFAReferenceInvalid):
		return http.StatusUnauthorized, "mfa_invalid"
	case errors.Is(err, goMFA.ErrResendThrottled):
		return http.StatusTooManyRequests, "resend_throttled"
	case errors.Is(err, goMFA.ErrInvalidAddress),
		errors.Is(err, goMFA.ErrInvalidChannel),
		errors.Is(err, goMFA.ErrChannelNotConfigured):
		return http.StatusUnprocessableEntity, "channel_unavailable"
	case errors.Is(err, goMFA.ErrTransportFailure):
		return http.StatusBadGateway, "transport_failure"
	case errors.Is(err, goMFA.ErrBackendUnavailable),
		errors.Is(err, goMFA.ErrLockUnavailable),
		errors.Is(err, goMFA.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func toSession(s *goMFA.AuthSession) *sessionResponse {
	if s == nil {
		return nil
	}
	return &sessionResponse{UserID: s.UserID, AuthenticatedAt: s.AuthenticatedAt, Methods: s.Methods}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, engine *goMFA.Engine, err error) {
	status, label := StatusFor(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds(engine.ResendCooldown()))
	}
	writeJSON(w, status, map[string]string{"error": label})
}

// retryAfterSeconds rounds d up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(max(secs, 1), 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
