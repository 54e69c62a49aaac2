package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
	"github.com/BrandonDHaskell/checkin/internal/ratelimit"
)

type Dependencies struct {
	Logger  logrus.FieldLogger
	Addr    string
	CheckIn *service.CheckInService

	// Verifier checks staff bearer tokens. Nil disables token checks;
	// RequireStaffAuth then rejects every staff route.
	Verifier         *auth.Verifier
	RequireStaffAuth bool

	// Limiter throttles scan routes per device. Nil means unlimited.
	Limiter *ratelimit.Limiter

	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
	mux        *http.ServeMux
	checkIn    *service.CheckInService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		checkIn: d.CheckIn,
	}

	staff := func(h http.HandlerFunc) http.Handler {
		return staffAuth(d.Verifier, d.RequireStaffAuth, h)
	}
	scan := func(h http.HandlerFunc) http.Handler {
		return staffAuth(d.Verifier, d.RequireStaffAuth, rateLimit(d.Limiter, d.Metrics, h))
	}

	mux.Handle("GET /v1/scan/pending", scan(s.handlePending))
	mux.Handle("POST /v1/scan/complete", scan(s.handleComplete))
	mux.Handle("GET /v1/reports/not_completed", staff(s.handleNotCompleted))

	mux.HandleFunc("GET /v1/participants/lookup", s.handleLookup)
	mux.HandleFunc("GET /v1/participants/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/participants/history", s.handleHistory)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	handler := observe(d.Logger, d.Metrics, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// fail maps err to a status and writes it, logging anything that is not a
// caller mistake.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"op":         op,
			"request_id": requestIDFrom(r.Context()),
		}).WithError(err).Error("request failed")
	}
	writeError(w, r, status, msg)
}

// ── Scanner ──────────────────────────────────────────────────────────────────

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	eventID, err := queryInt64(r, "event_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.checkIn.GetPendingItems(r.Context(), eventID, r.URL.Query().Get("token"))
	if err != nil {
		s.fail(w, r, "pending", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req types.CompleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = r.Header.Get(headerDeviceID)
	}

	resp, err := s.checkIn.CompleteItem(r.Context(), req, auth.StaffIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client is gone and nothing was written.
			return
		}
		s.fail(w, r, "complete", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleNotCompleted(w http.ResponseWriter, r *http.Request) {
	var (
		q   service.NotCompletedQuery
		err error
	)
	if q.ItemID, err = queryInt64(r, "item_id"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if q.EventID, err = queryInt64(r, "event_id"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if q.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.checkIn.NotCompleted(r.Context(), q)
	if err != nil {
		s.fail(w, r, "not_completed", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}

// ── Participant-facing ───────────────────────────────────────────────────────

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := s.checkIn.LookupByPhone(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		s.fail(w, r, "lookup", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	eventID, err := queryInt64(r, "event_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.checkIn.SummaryByPhone(r.Context(), r.URL.Query().Get("phone"), eventID)
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := service.HistoryQuery{Status: r.URL.Query().Get("status")}
	var err error
	if q.EventID, err = queryInt64(r, "event_id"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if q.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.checkIn.HistoryByPhone(r.Context(), r.URL.Query().Get("phone"), q)
	if err != nil {
		s.fail(w, r, "history", err)
		return
	}
	respond(w, r, http.StatusOK, resp)
}
