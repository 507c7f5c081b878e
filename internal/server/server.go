// Package server serves the profile service: the HTTP API behind
// platform.ProfileStore plus liveness and readiness probes.
//
//	GET   /v1/profiles/{id}
//	PATCH /v1/profiles/{id}
//	PUT   /v1/profiles/{id}
//	GET   /health/live
//	GET   /health/ready
//	GET   /metrics        (when a gatherer is configured)
//
// Shutdown fails readiness first, then drains connections.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/health"
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/log"
	"github.com/felixgeelhaar/campusconnect/internal/metrics"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/telemetry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Server is the profile service HTTP server.
type Server struct {
	httpServer      *http.Server
	store           profile.Store
	probes          *health.ProbeManager
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration

	logger   *log.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	verifier identity.Verifier
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080", "127.0.0.1:8088")
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 30 seconds.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records profile requests in m and serves g on /metrics.
// g may be nil to skip the endpoint.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithVerifier requires a bearer token whose subject owns the profile.
func WithVerifier(v identity.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// NewServer creates a server for store; probes may be nil.
func NewServer(store profile.Store, probes *health.ProbeManager, cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if probes == nil {
		probes = health.NewProbeManager("")
	}

	s := &Server{
		store:           store,
		probes:          probes,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Or(s.logger).With("component", "server")

	mux := http.NewServeMux()
	mux.Handle("GET /v1/profiles/{id}", s.profileRoute(s.handleGet))
	mux.Handle("PATCH /v1/profiles/{id}", s.profileRoute(s.handleMerge))
	mux.Handle("PUT /v1/profiles/{id}", s.profileRoute(s.handlePut))
	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.HandlerFor(s.gatherer))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and blocks. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("profile service listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l and blocks like Start.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("profile service listening", "addr", l.Addr().String())
	return s.httpServer.Serve(l)
}

// Shutdown fails readiness and drains open connections for at most the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probes.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown reports whether Shutdown was called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

type profileHandler func(w http.ResponseWriter, r *http.Request, userID string) error

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// profileRoute authorizes the request, runs h and records the outcome.
func (s *Server) profileRoute(h profileHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		userID := r.PathValue("id")

		ctx, span := telemetry.StartServerSpan(r, "profiles."+strings.ToLower(r.Method),
			attribute.String(telemetry.AttrUserID, userID))
		defer span.End()
		r = r.WithContext(ctx)

		err := s.authorize(r, userID)
		if err == nil {
			err = h(rec, r, userID)
		}
		if err != nil {
			s.writeError(rec, r, err)
			telemetry.RecordError(span, err)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))

		elapsed := time.Since(start)
		s.metrics.RecordProfileRequest(r.Method, strconv.Itoa(rec.status), elapsed)
		s.logger.DebugContext(r.Context(), "profile request",
			"method", r.Method, "user_id", userID, "status", rec.status, "duration", elapsed)
	})
}

func (s *Server) authorize(r *http.Request, userID string) error {
	if s.verifier == nil {
		return nil
	}
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return errors.New(errors.ErrCodeIdentityTokenInvalid, "missing bearer token").WithKind(errors.KindAuth)
	}
	cred, err := s.verifier.Verify(r.Context(), strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if cred.UserID != userID {
		return errors.New(errors.ErrCodeIdentityTokenInvalid, "token does not own this profile").
			WithKind(errors.KindAuth)
	}
	return nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, userID string) error {
	p, err := s.store.Get(r.Context(), userID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request, userID string) error {
	var u profile.Update
	if err := decodeBody(r, &u); err != nil {
		return err
	}
	if err := s.store.Merge(r.Context(), userID, u); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, userID string) error {
	var p profile.Profile
	if err := decodeBody(r, &p); err != nil {
		return err
	}
	if p.UserID != "" && p.UserID != userID {
		return errors.New(errors.ErrCodeProfileInvalid, "user_id does not match the request path").
			WithKind(errors.KindInvalid)
	}
	p.UserID = userID
	if err := s.store.Put(r.Context(), &p); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return errors.Wrap(errors.ErrCodeProfileInvalid, "malformed request body", err).WithKind(errors.KindInvalid)
	}
	return nil
}

// errorBody is decoded by platform.Client.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindInvalid:
		return http.StatusBadRequest
	case errors.KindAuth:
		return http.StatusUnauthorized
	case errors.KindTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: string(errors.CodeOf(err))}
	if ce, ok := errors.As(err); ok {
		body.Error = ce.Message
	}
	if status >= http.StatusInternalServerError {
		s.metrics.RecordError("server", err)
		s.logger.LogErrorContext(r.Context(), "profile request failed", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeProbe(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	writeJSON(w, status, result)
}

// handleLiveness always answers 200, degraded while shutting down.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbe(w, s.probes.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when a check is unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbe(w, s.probes.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}
