package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
	"github.com/roach88/synclog/internal/ownership"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds push bodies.
const maxBodyBytes = 32 << 20

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes an Engine over HTTP.
type Server struct {
	engine  *engine.Engine
	auth    *Authenticator
	limits  *limiterPool
	health  Pinger
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit enables per-identity token buckets.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limits = newLimiterPool(rps, burst)
		}
	}
}

// WithHealthCheck makes /healthz ping p.
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) { s.health = p }
}

// WithMetricsHandler overrides promhttp.Handler for /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a Server for eng authenticating with auth.
func NewServer(eng *engine.Engine, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		engine:  eng,
		auth:    auth,
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestID)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticate)
	v1.HandleFunc("/stores/{storeId}/push", s.push).Methods(http.MethodPost)
	v1.HandleFunc("/stores/{storeId}/events", s.pull).Methods(http.MethodGet)
	v1.HandleFunc("/stores/{storeId}", s.reset).Methods(http.MethodDelete)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(RequestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.auth.Identify(r)
		if err != nil {
			slog.Warn("unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		if s.limits != nil && !s.limits.Allow(identity) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	// Sequences are server-assigned; anything a client sends is dropped.
	for i := range req.Events {
		req.Events[i].CommitSequence = 0
		req.Events[i].GlobalSequence = nil
	}

	res, err := s.engine.Push(r.Context(), IdentityFromContext(r.Context()), mux.Vars(r)["storeId"], req.ExpectedHead, req.Events)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, pushResponse(res))
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := intParam(q.Get("since"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "since: "+err.Error())
		return
	}
	limit, err := intParam(q.Get("limit"), engine.DefaultMaxPullLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "limit: "+err.Error())
		return
	}

	res, err := s.engine.Pull(r.Context(), IdentityFromContext(r.Context()), mux.Vars(r)["storeId"], since, int(limit))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	events := res.Events
	if events == nil {
		events = []event.Record{}
	}
	writeJSON(w, http.StatusOK, PullResponse{Events: events, Head: res.Head})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context(), IdentityFromContext(r.Context()), mux.Vars(r)["storeId"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intParam(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// writeEngineError maps engine error classes onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		ad *engine.AccessDeniedError
		od *ownership.DeniedError
		re *engine.RequestError
	)
	switch {
	case errors.As(err, &ad):
		writeError(w, http.StatusForbidden, string(ad.Code), ad.Message)
	case errors.As(err, &od):
		writeError(w, http.StatusForbidden, string(od.Code), od.Message)
	case engine.IsAccessDenied(err):
		writeError(w, http.StatusForbidden, "ACCESS_DENIED", err.Error())
	case errors.As(err, &re):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", re.Error())
	case errors.Is(err, event.ErrDuplicateEvent):
		writeError(w, http.StatusBadRequest, "DUPLICATE_EVENT", err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
