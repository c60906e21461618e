// Package httpapi exposes the blueprint workbench over JSON/HTTP.
//
// Tenant identity is taken from the X-Company and X-Project headers. The
// headers are trusted as-is: authenticating the caller is the job of
// whatever sits in front of this server.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/tenant"
)

// Tenant headers.
const (
	HeaderCompany = "X-Company"
	HeaderProject = "X-Project"
	HeaderUser    = "X-User-ID"
)

// Workbench is the session manager as seen by the HTTP handlers.
type Workbench interface {
	Predict(ctx context.Context, in session.PredictInput) (*session.PredictOutput, error)
	Get(id string) (*session.Session, error)
	Refine(ctx context.Context, sessionID, instruction string) (*session.RefineOutput, error)
	Feedback(ctx context.Context, in session.FeedbackInput) (*session.FeedbackOutput, error)
	RecordOutcome(ctx context.Context, patternID, tenantID string, outcome feedback.Outcome) (feedback.OutcomeEvent, error)
	Ground(ctx context.Context, patternID string, success bool) (patterns.PatternConfidence, error)
	Patterns() []session.PatternSummary
}

// Config holds HTTP server settings.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
}

// DefaultConfig returns the default HTTP configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 1 << 20, // 1MB
	}
}

// Server routes JSON requests to a Workbench.
type Server struct {
	router *mux.Router
	bench  Workbench
	logger *zap.Logger
	tracer trace.Tracer
	config Config
	start  time.Time
}

// NewServer creates a Server.
func NewServer(bench Workbench, logger *zap.Logger, config Config) (*Server, error) {
	if bench == nil {
		return nil, errors.New("workbench is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRequestSize <= 0 {
		config.MaxRequestSize = DefaultConfig().MaxRequestSize
	}

	s := &Server{
		router: mux.NewRouter(),
		bench:  bench,
		logger: logger.Named("http"),
		tracer: otel.Tracer("github.com/HendryAvila/blueprint/internal/httpapi"),
		config: config,
		start:  time.Now(),
	}
	s.setupRoutes()
	s.setupMiddleware()
	return s, nil
}

func (s *Server) setupRoutes() {
	// Registered on the root router so a wrong method is a 405, not a 404.
	s.router.HandleFunc("/api/predict", s.handlePredict).Methods(http.MethodPost)
	s.router.HandleFunc("/api/refine", s.handleRefine).Methods(http.MethodPost)
	s.router.HandleFunc("/api/feedback", s.handleFeedback).Methods(http.MethodPost)
	s.router.HandleFunc("/api/outcome", s.handleOutcome).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/api/patterns", s.handlePatterns).Methods(http.MethodGet)
	s.router.HandleFunc("/api/patterns/{id}/ground", s.handleGround).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.limitRequestSize)
	s.router.Use(s.tracingMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", s.config.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// ─── Requests ────────────────────────────────────────────────────────────────

type predictRequest struct {
	Requirement       string   `json:"requirement"`
	Context           []string `json:"context"`
	TenantDescription string   `json:"tenant_description"`
	AutoFix           *bool    `json:"auto_fix"`
	MaxAutoFix        *int     `json:"max_auto_fix_attempts"`
}

type refineRequest struct {
	SessionID   string `json:"session_id"`
	Instruction string `json:"instruction"`
}

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	PatternID string `json:"pattern_id"`
}

type outcomeRequest struct {
	PatternID string `json:"pattern_id"`
	Outcome   string `json:"outcome"`
}

type groundRequest struct {
	Success *bool `json:"success"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// handlePredict handles POST /api/predict.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.MaxAutoFix != nil && *req.MaxAutoFix < 0 {
		s.respondError(w, http.StatusBadRequest, "max_auto_fix_attempts must be >= 0")
		return
	}

	out, err := s.bench.Predict(r.Context(), session.PredictInput{
		UserInput:         req.Requirement,
		Context:           req.Context,
		Auth:              authFrom(r),
		TenantDescription: req.TenantDescription,
		Overrides:         pipeline.Overrides{EnableAutoFix: req.AutoFix, MaxAutoFixAttempts: req.MaxAutoFix},
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleRefine handles POST /api/refine.
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	out, err := s.bench.Refine(r.Context(), req.SessionID, req.Instruction)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleFeedback handles POST /api/feedback.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	outcome, err := feedback.ParseOutcome(strings.ToLower(req.Outcome))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "outcome must be accepted, rejected or modified")
		return
	}
	if req.Rating < 0 || req.Rating > 5 {
		s.respondError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	out, err := s.bench.Feedback(r.Context(), session.FeedbackInput{
		SessionID: req.SessionID,
		Outcome:   outcome,
		Rating:    req.Rating,
		Comment:   req.Comment,
		PatternID: req.PatternID,
		TenantID:  tenant.TenantID(authFrom(r)),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleOutcome handles POST /api/outcome.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PatternID) == "" {
		s.respondError(w, http.StatusBadRequest, "pattern_id is required")
		return
	}
	outcome, err := feedback.ParseOutcome(strings.ToLower(req.Outcome))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "outcome must be accepted, rejected or modified")
		return
	}

	ev, err := s.bench.RecordOutcome(r.Context(), req.PatternID, tenant.TenantID(authFrom(r)), outcome)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ev)
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.bench.Get(mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

// handlePatterns handles GET /api/patterns[?category=].
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	list := make([]session.PatternSummary, 0)
	for _, p := range s.bench.Patterns() {
		if category == "" || p.Category == category {
			list = append(list, p)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": list,
		"count":    len(list),
	})
}

// handleGround handles POST /api/patterns/{id}/ground. An empty body counts
// as a successful use.
func (s *Server) handleGround(w http.ResponseWriter, r *http.Request) {
	req := groundRequest{}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	success := req.Success == nil || *req.Success

	c, err := s.bench.Ground(r.Context(), mux.Vars(r)["id"], success)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"patterns": len(s.bench.Patterns()),
		"uptime":   time.Since(s.start).Round(time.Second).String(),
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func authFrom(r *http.Request) tenant.AuthContext {
	return tenant.AuthContext{
		UserID:     strings.TrimSpace(r.Header.Get(HeaderUser)),
		Company:    strings.TrimSpace(r.Header.Get(HeaderCompany)),
		Project:    strings.TrimSpace(r.Header.Get(HeaderProject)),
		AuthMethod: "header",
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// handleError maps workbench errors to status codes.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	trace.SpanFromContext(r.Context()).RecordError(err)

	switch {
	case errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, feedback.ErrEmptySession),
		errors.Is(err, feedback.ErrInvalidOutcome):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, patterns.ErrPatternNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Middleware ──────────────────────────────────────────────────────────────

func (s *Server) limitRequestSize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name = tpl
			}
		}
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("blueprint.company", r.Header.Get(HeaderCompany)),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				s.logger.Error("panic in handler",
					zap.Any("panic", rv),
					zap.String("path", r.URL.Path))
				s.respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
