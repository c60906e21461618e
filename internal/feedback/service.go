package feedback

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service buffers modifications per session until feedback is submitted.
type Service struct {
	mu      sync.Mutex
	pending map[string][]ModificationEvent

	sink   Sink
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service. sink may be nil, in which case signals are
// only logged.
func NewService(sink Sink, opts ...Option) *Service {
	s := &Service{
		pending: make(map[string][]ModificationEvent),
		sink:    sink,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("feedback")
	return s
}

// RecordModification appends an edit to the session buffer.
func (s *Service) RecordModification(sessionID string, e ModificationEvent) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrEmptySession
	}
	e.SessionID = sessionID
	if e.At.IsZero() {
		e.At = s.now()
	}

	s.mu.Lock()
	s.pending[sessionID] = append(s.pending[sessionID], e)
	s.mu.Unlock()
	return nil
}

// Pending returns a copy of the session's buffered modifications.
func (s *Service) Pending(sessionID string) []ModificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ModificationEvent(nil), s.pending[sessionID]...)
}

// SubmitFeedback derives a learning signal from the verdict and the session's
// buffered modifications, hands it to the sink and clears the buffer. When
// the sink fails the buffer is kept so the caller can retry.
func (s *Service) SubmitFeedback(ctx context.Context, fb Feedback) (LearningSignal, error) {
	fb.SessionID = strings.TrimSpace(fb.SessionID)
	if fb.SessionID == "" {
		return LearningSignal{}, ErrEmptySession
	}
	if _, err := ParseOutcome(string(fb.Outcome)); err != nil {
		return LearningSignal{}, fmt.Errorf("%w: %q", err, fb.Outcome)
	}
	if fb.Rating < 0 || fb.Rating > 5 {
		return LearningSignal{}, fmt.Errorf("feedback: rating %d outside 0-5", fb.Rating)
	}

	mods := s.Pending(fb.SessionID)
	if mods == nil {
		mods = []ModificationEvent{}
	}
	sig := LearningSignal{
		ID:            uuid.NewString(),
		SessionID:     fb.SessionID,
		PatternID:     fb.PatternID,
		TenantID:      fb.TenantID,
		Outcome:       fb.Outcome,
		Weight:        Weight(fb.Outcome, len(mods), fb.Rating),
		Rating:        fb.Rating,
		Comment:       fb.Comment,
		Modifications: mods,
		CreatedAt:     s.now(),
	}

	if s.sink != nil {
		if err := s.sink.SaveLearningSignal(ctx, sig); err != nil {
			return LearningSignal{}, fmt.Errorf("saving learning signal: %w", err)
		}
	}

	s.mu.Lock()
	delete(s.pending, fb.SessionID)
	s.mu.Unlock()

	s.logger.Info("learning signal",
		zap.String("session", sig.SessionID),
		zap.String("pattern", sig.PatternID),
		zap.String("outcome", string(sig.Outcome)),
		zap.Float64("weight", sig.Weight),
		zap.Int("modifications", len(mods)),
	)
	return sig, nil
}

// Weight scores a verdict. Accepted starts at 1.0 and loses 0.1 per
// modification (floor 0.3); modified starts at 0.5 and loses 0.05 per
// modification (floor 0.1); rejected is -1.0. A rating of 1-5 scales the
// result by 0.5 + rating/10.
func Weight(o Outcome, modifications, rating int) float64 {
	var w float64
	switch o {
	case OutcomeAccepted:
		w = math.Max(0.3, 1.0-0.1*float64(modifications))
	case OutcomeModified:
		w = math.Max(0.1, 0.5-0.05*float64(modifications))
	case OutcomeRejected:
		w = -1.0
	}
	if rating > 0 {
		w *= 0.5 + float64(rating)/10
	}
	return w
}
