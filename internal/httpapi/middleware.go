package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/ids"
	"github.com/BrandonDHaskell/checkin/internal/ratelimit"
)

const (
	headerRequestID = "X-Request-ID"
	headerDeviceID  = "X-Device-ID"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// observe is the outermost middleware: it assigns a request id, logs the
// request and records HTTP metrics keyed by the matched mux pattern.
func observe(logger logrus.FieldLogger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = ids.NewRequestID()
		}
		w.Header().Set(headerRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		m.TrackInFlight(1)
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.TrackInFlight(-1)

		dur := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(r.Method, route, sw.code, dur)

		entry := logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.code,
			"dur_ms":     dur.Milliseconds(),
			"remote":     r.RemoteAddr,
			"request_id": id,
		})
		if sw.code >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	})
}

// staffAuth attaches the staff identity from a bearer token. With required
// set, requests without a valid token are rejected; otherwise a missing
// token is allowed but an invalid one is still rejected.
func staffAuth(v *auth.Verifier, required bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := auth.BearerToken(r.Header.Get("Authorization"))
		if tok == "" || v == nil {
			if required {
				w.Header().Set("WWW-Authenticate", `Bearer realm="checkin"`)
				writeError(w, r, http.StatusUnauthorized, auth.ErrMissingToken.Error())
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		staff, err := v.Verify(tok)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="checkin", error="invalid_token"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithStaff(r.Context(), staff)))
	})
}

// rateLimit applies the per-device limiter. The bucket is keyed by the
// authenticated staff id, then X-Device-ID, then the client IP. The header
// is client-supplied, so it only separates anonymous callers.
func rateLimit(l *ratelimit.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(deviceKey(r)) {
			m.IncRateLimited("http")
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deviceKey(r *http.Request) string {
	if s, ok := auth.StaffFromContext(r.Context()); ok {
		return "staff:" + strconv.FormatInt(s.ID, 10)
	}
	if d := strings.TrimSpace(r.Header.Get(headerDeviceID)); d != "" {
		return "device:" + d
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
