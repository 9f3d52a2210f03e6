package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	goMFA "github.com/MrEthical07/goMFA"
)

// RequestIDHeader is read for an inbound request ID and echoed on the response.
const RequestIDHeader = "X-Request-ID"

// RequestContext attaches client metadata to the request context. A request
// without an X-Request-ID header gets a generated one.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := goMFA.WithClientIP(r.Context(), clientIP(r))
		ctx = goMFA.WithUserAgent(ctx, r.UserAgent())
		ctx = goMFA.WithRequestID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
