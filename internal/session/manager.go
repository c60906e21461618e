// Package session ties the pipeline to a conversation: a prediction opens a
// session, refinements edit it, and feedback closes it and feeds the learning
// paths (learning signal, affinity outcome, grounding, tenant context).
//
// Both transports (MCP tools and HTTP) drive the same Manager.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/tenant"
	"github.com/HendryAvila/blueprint/internal/validation"
)

const (
	// DefaultCapacity bounds the number of open sessions.
	DefaultCapacity = 1024
	// DefaultTTL is how long an untouched session stays open.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrEmptyInput is returned for a blank requirement or instruction.
	ErrEmptyInput = errors.New("session: empty input")
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session: not found")
)

// ─── Collaborators ───────────────────────────────────────────────────────────

// Runner executes the pipeline. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Execute(ctx context.Context, req pipeline.Request) *pipeline.Result
	RecordOutcome(ctx context.Context, patternID, tenantID string, outcome feedback.Outcome) (feedback.OutcomeEvent, error)
}

// Validator re-checks refined structures. *validation.Service satisfies it.
type Validator interface {
	Validate(ctx context.Context, p *prediction.StructurePrediction) (*validation.Result, error)
}

// FeedbackRecorder buffers edits and derives learning signals.
// *feedback.Service satisfies it.
type FeedbackRecorder interface {
	RecordModification(sessionID string, e feedback.ModificationEvent) error
	SubmitFeedback(ctx context.Context, fb feedback.Feedback) (feedback.LearningSignal, error)
}

// ConfidenceStore persists grounding snapshots. *store.Store satisfies it.
type ConfidenceStore interface {
	SaveConfidence(ctx context.Context, patternID string, c patterns.PatternConfidence) error
}

// TenantProvider resolves and grows tenant contexts. *tenant.Provider
// satisfies it.
type TenantProvider interface {
	Resolve(ctx context.Context, auth tenant.AuthContext, description string) *patterns.TenantContext
	Observe(ctx context.Context, tenantID, text string) error
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Session is one requirement being worked on.
type Session struct {
	ID            string                          `json:"id"`
	TenantID      string                          `json:"tenant_id,omitempty"`
	UserInput     string                          `json:"user_input"`
	PatternID     string                          `json:"pattern_id,omitempty"`
	Prediction    *prediction.StructurePrediction `json:"prediction"`
	Modifications int                             `json:"modifications"`
	CreatedAt     time.Time                       `json:"created_at"`
	UpdatedAt     time.Time                       `json:"updated_at"`
}

func (s *Session) clone() *Session {
	c := *s
	if s.Prediction != nil {
		p := s.Prediction.Clone()
		c.Prediction = &p
	}
	return &c
}

// PredictInput is one prediction request from a transport.
type PredictInput struct {
	UserInput string
	Context   []string
	Auth      tenant.AuthContext
	// TenantDescription initialises the tenant's context on first use.
	TenantDescription string
	// Overrides adjusts the configured pipeline settings for this request.
	Overrides pipeline.Overrides
}

// PredictOutput is the pipeline result plus the session it opened. SessionID
// is empty when no structure was produced.
type PredictOutput struct {
	SessionID string           `json:"session_id,omitempty"`
	Result    *pipeline.Result `json:"result"`
}

// RefineOutput is the refined structure and its fresh validation.
type RefineOutput struct {
	Session      *Session                `json:"session"`
	Modification prediction.Modification `json:"modification"`
	Validation   *validation.Result      `json:"validation,omitempty"`
}

// FeedbackInput closes a session.
type FeedbackInput struct {
	SessionID string
	Outcome   feedback.Outcome
	Rating    int
	Comment   string
	// PatternID and TenantID are used when the session has expired.
	PatternID string
	TenantID  string
}

// FeedbackOutput reports what the verdict fed.
type FeedbackOutput struct {
	Signal     feedback.LearningSignal     `json:"signal"`
	Outcome    *feedback.OutcomeEvent      `json:"outcome,omitempty"`
	Confidence *patterns.PatternConfidence `json:"confidence,omitempty"`
}

// PatternSummary is a catalogue entry with its effective confidence.
type PatternSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Description    string  `json:"description"`
	Confidence     float64 `json:"confidence"`
	GroundingCount int     `json:"grounding_count"`
	UsageCount     int     `json:"usage_count"`
	Sections       int     `json:"sections"`
}

// ─── Manager ─────────────────────────────────────────────────────────────────

// Manager owns open sessions.
type Manager struct {
	runner     Runner
	feedback   FeedbackRecorder
	library    *patterns.Library
	validator  Validator
	confidence ConfidenceStore
	tenants    TenantProvider

	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	now      func() time.Time
	logger   *zap.Logger

	capacity int
	ttl      time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithValidator re-validates after each refinement.
func WithValidator(v Validator) Option { return func(m *Manager) { m.validator = v } }

// WithConfidenceStore persists grounding after each change.
func WithConfidenceStore(s ConfidenceStore) Option { return func(m *Manager) { m.confidence = s } }

// WithTenants enables tenant resolution.
func WithTenants(t TenantProvider) Option { return func(m *Manager) { m.tenants = t } }

// WithCapacity bounds open sessions.
func WithCapacity(n int, ttl time.Duration) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.Named("session")
		}
	}
}

// NewManager creates a Manager.
func NewManager(runner Runner, fb FeedbackRecorder, library *patterns.Library, opts ...Option) *Manager {
	m := &Manager{
		runner:   runner,
		feedback: fb,
		library:  library,
		now:      time.Now,
		logger:   zap.NewNop(),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sessions = expirable.NewLRU[string, *Session](m.capacity, nil, m.ttl)
	return m
}

// Predict runs the pipeline and opens a session on its structure.
func (m *Manager) Predict(ctx context.Context, in PredictInput) (*PredictOutput, error) {
	if strings.TrimSpace(in.UserInput) == "" {
		return nil, ErrEmptyInput
	}

	req := pipeline.Request{
		UserInput: in.UserInput,
		Context:   in.Context,
		Overrides: in.Overrides,
		TenantID:  tenant.TenantID(in.Auth),
	}
	if m.tenants != nil && req.TenantID != "" {
		req.Tenant = m.tenants.Resolve(ctx, in.Auth, in.TenantDescription)
	}

	res := m.runner.Execute(ctx, req)
	out := &PredictOutput{Result: res}
	if res.Prediction == nil {
		return out, nil
	}

	now := m.now()
	p := res.Prediction.Clone()
	s := &Session{
		ID:         res.RequestID,
		TenantID:   req.TenantID,
		UserInput:  in.UserInput,
		PatternID:  p.PatternID,
		Prediction: &p,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.mu.Lock()
	m.sessions.Add(s.ID, s)
	m.mu.Unlock()

	out.SessionID = s.ID
	return out, nil
}

// Get returns a copy of an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.clone(), nil
}

// Refine applies a free-text edit to the session's structure and buffers it
// for feedback.
func (m *Manager) Refine(ctx context.Context, sessionID, instruction string) (*RefineOutput, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInput
	}

	m.mu.Lock()
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	refined, mod := prediction.ApplyModification(*s.Prediction, instruction)
	s.Prediction = &refined
	s.Modifications++
	s.UpdatedAt = m.now()
	snapshot := s.clone()
	m.mu.Unlock()

	if err := m.feedback.RecordModification(sessionID, feedback.ModificationEvent{
		Instruction: instruction,
		Target:      mod.Target,
		Action:      mod.Action,
	}); err != nil {
		return nil, err
	}

	out := &RefineOutput{Session: snapshot, Modification: mod}
	if m.validator != nil {
		r, err := m.validator.Validate(ctx, snapshot.Prediction)
		if err != nil {
			return nil, fmt.Errorf("validating refinement: %w", err)
		}
		out.Validation = r
	}
	return out, nil
}

// Feedback closes a session. The verdict becomes a learning signal; when the
// pattern is known it is also recorded as an affinity outcome, and an
// accepted verdict grounds the pattern and folds the requirement into the
// tenant's context.
func (m *Manager) Feedback(ctx context.Context, in FeedbackInput) (*FeedbackOutput, error) {
	patternID, tenantID, userInput := in.PatternID, in.TenantID, ""
	m.mu.Lock()
	if s, ok := m.sessions.Get(in.SessionID); ok {
		patternID, tenantID, userInput = s.PatternID, s.TenantID, s.UserInput
	}
	m.mu.Unlock()

	sig, err := m.feedback.SubmitFeedback(ctx, feedback.Feedback{
		SessionID: in.SessionID,
		PatternID: patternID,
		TenantID:  tenantID,
		Outcome:   in.Outcome,
		Rating:    in.Rating,
		Comment:   in.Comment,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions.Remove(in.SessionID)
	m.mu.Unlock()

	out := &FeedbackOutput{Signal: sig}
	if patternID == "" {
		return out, nil
	}

	ev, err := m.runner.RecordOutcome(ctx, patternID, tenantID, in.Outcome)
	if err != nil {
		m.logger.Warn("recording outcome failed", zap.String("pattern", patternID), zap.Error(err))
	} else {
		out.Outcome = &ev
	}

	if in.Outcome == feedback.OutcomeAccepted {
		c, err := m.Ground(ctx, patternID, true)
		if err != nil {
			m.logger.Warn("grounding failed", zap.String("pattern", patternID), zap.Error(err))
		} else {
			out.Confidence = &c
		}
		if m.tenants != nil && tenantID != "" && userInput != "" {
			if err := m.tenants.Observe(ctx, tenantID, userInput); err != nil {
				m.logger.Debug("tenant observe skipped", zap.String("tenant", tenantID), zap.Error(err))
			}
		}
	}
	return out, nil
}

// RecordOutcome passes an explicit verdict to the affinity path.
func (m *Manager) RecordOutcome(ctx context.Context, patternID, tenantID string, outcome feedback.Outcome) (feedback.OutcomeEvent, error) {
	return m.runner.RecordOutcome(ctx, patternID, tenantID, outcome)
}

// Ground records a use of a pattern and persists the new grounding state.
func (m *Manager) Ground(ctx context.Context, patternID string, success bool) (patterns.PatternConfidence, error) {
	c, err := m.library.Ground(patternID, success)
	if err != nil {
		return patterns.PatternConfidence{}, err
	}
	if success && m.confidence != nil {
		if err := m.confidence.SaveConfidence(ctx, patternID, c); err != nil {
			return c, fmt.Errorf("persisting grounding: %w", err)
		}
	}
	return c, nil
}

// Patterns lists the catalogue with each pattern's effective confidence.
func (m *Manager) Patterns() []PatternSummary {
	list := m.library.List()
	out := make([]PatternSummary, 0, len(list))
	for _, p := range list {
		sum := PatternSummary{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
			UsageCount:  p.Metadata.UsageCount,
			Sections:    len(p.Structure.Sections),
		}
		sum.Confidence, _ = m.library.CurrentConfidence(p.ID)
		if p.Confidence != nil {
			sum.GroundingCount = p.Confidence.GroundingCount
		}
		out = append(out, sum)
	}
	return out
}
