package patterns

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/signal"
)

// DefaultMinScore is the rule-matching threshold.
const DefaultMinScore = 0.2

// Library owns the registered patterns. Every read hands out a copy; state
// changes only through Register, InitializeConfidence, RestoreConfidence,
// Ground and SetAffinity.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]*entry

	minScore float64
	now      func() time.Time
	logger   *zap.Logger
}

type entry struct {
	pattern Pattern
	rules   []compiledRule
}

// Option configures a Library.
type Option func(*Library)

// WithClock replaces time.Now, for decay tests.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithLogger sets the library logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMinScore overrides the rule-matching threshold.
func WithMinScore(v float64) Option {
	return func(l *Library) { l.minScore = v }
}

// NewLibrary creates an empty library.
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		patterns: make(map[string]*entry),
		minScore: DefaultMinScore,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("patterns")
	return l
}

// Register adds or replaces a pattern. Rules are validated up front so a bad
// pattern never reaches matching.
func (l *Library) Register(p Pattern) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPattern)
	}
	rules, err := compileRules(p.ApplicabilityRules)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidPattern, p.ID, err)
	}

	p = p.Clone()
	if p.Metadata.CreatedAt.IsZero() {
		p.Metadata.CreatedAt = l.now()
	}
	if p.Metadata.UpdatedAt.IsZero() {
		p.Metadata.UpdatedAt = p.Metadata.CreatedAt
	}

	l.mu.Lock()
	_, replaced := l.patterns[p.ID]
	l.patterns[p.ID] = &entry{pattern: p, rules: rules}
	l.mu.Unlock()

	l.logger.Debug("registered pattern", zap.String("id", p.ID), zap.Bool("replaced", replaced))
	return nil
}

// Get returns a copy of the pattern.
func (l *Library) Get(id string) (Pattern, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.patterns[id]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return e.pattern.Clone(), nil
}

// List returns copies of every pattern, sorted by ID.
func (l *Library) List() []Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Pattern, 0, len(l.patterns))
	for _, e := range l.patterns {
		out = append(out, e.pattern.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered patterns.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// InitializeConfidence attaches fresh confidence data: never grounded, so no
// decay until the first successful grounding.
func (l *Library) InitializeConfidence(id string, base, decayRate float64) error {
	return l.update(id, func(p *Pattern) {
		p.Confidence = &PatternConfidence{Base: base, DecayRate: decayRate}
	})
}

// RestoreConfidence replaces confidence data with a persisted snapshot.
func (l *Library) RestoreConfidence(id string, c PatternConfidence) error {
	return l.update(id, func(p *Pattern) {
		restored := c
		if c.LastGrounded != nil {
			t := *c.LastGrounded
			restored.LastGrounded = &t
		}
		p.Confidence = &restored
	})
}

// Ground records a use of the pattern. Only success=true changes anything:
// the decay clock resets and the grounding count grows. A pattern without
// confidence data is initialised with the defaults first. The returned value
// is the confidence state after the call.
func (l *Library) Ground(id string, success bool) (PatternConfidence, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.patterns[id]
	if !ok {
		return PatternConfidence{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	if !success {
		if e.pattern.Confidence == nil {
			return PatternConfidence{}, nil
		}
		return *e.pattern.Clone().Confidence, nil
	}

	if e.pattern.Confidence == nil {
		e.pattern.Confidence = &PatternConfidence{Base: DefaultBaseConfidence, DecayRate: DefaultDecayRate}
	}
	now := l.now()
	e.pattern.Confidence.LastGrounded = &now
	e.pattern.Confidence.GroundingCount++
	e.pattern.Metadata.UsageCount++
	e.pattern.Metadata.UpdatedAt = now

	l.logger.Debug("grounded pattern",
		zap.String("id", id),
		zap.Int("grounding_count", e.pattern.Confidence.GroundingCount),
	)
	return *e.pattern.Clone().Confidence, nil
}

// CurrentConfidence returns the pattern's effective confidence right now.
func (l *Library) CurrentConfidence(id string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.patterns[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return CurrentConfidence(e.pattern, l.now()), nil
}

// SetAffinity stores a learned domain-affinity vector on the pattern.
func (l *Library) SetAffinity(id string, affinity []float32) error {
	return l.update(id, func(p *Pattern) {
		p.DomainAffinity = append([]float32(nil), affinity...)
	})
}

func (l *Library) update(id string, fn func(*Pattern)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.patterns[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	fn(&e.pattern)
	return nil
}

// ─── Rule matching ───────────────────────────────────────────────────────────

// Match returns the best rule-based match at or above the threshold, or nil.
// Rule scores are scaled by the pattern's current confidence, so a pattern
// nobody has used lately loses to a fresh one with the same textual fit.
//
// tenant is accepted for symmetry with the vector path; rule scoring does not
// look at it, since tenants only re-rank and never filter.
func (l *Library) Match(c signal.IntentClassification, tenant *TenantContext) *PatternMatch {
	ranked := l.Rank(c, tenant)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// Rank returns every pattern scoring at or above the threshold, best first.
// Equal scores are ordered by pattern ID.
func (l *Library) Rank(c signal.IntentClassification, _ *TenantContext) []PatternMatch {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	var out []PatternMatch
	for _, e := range l.patterns {
		score := ruleScore(e.rules, c) * CurrentConfidence(e.pattern, now)
		if score < l.minScore {
			continue
		}
		out = append(out, PatternMatch{Pattern: e.pattern.Clone(), Score: score, Source: SourceRule})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Pattern.ID < out[j].Pattern.ID
	})
	return out
}
