// Package vectorindex is the similarity search over the pattern catalogue.
// Each pattern is embedded once; a query is embedded, fused with the
// tenant's domain embedding, and compared by cosine similarity against every
// pattern vector.
//
// Affinity is a learned bias vector: a pattern's score is the cosine of the
// query against the pattern vector plus the projection of the unit query on
// its affinity, capped at 1.
//
// The index fails closed. Without an embedding engine, before Initialize, or
// when the engine errors, FindBestMatch returns nil and
// UpdatePatternAffinity returns false, and the caller falls back to rules.
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/embedding"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/store"
)

// Store is the persistence the index needs. *store.Store satisfies it.
type Store interface {
	SavePatternVector(ctx context.Context, v store.PatternVector) error
	ListPatternVectors(ctx context.Context) ([]store.PatternVector, error)
	UpdateAffinity(ctx context.Context, patternID string, affinity []float32) error
}

type entry struct {
	vector   []float32
	affinity []float32
	words    map[string]struct{}
}

// Index implements patterns.VectorIndex.
type Index struct {
	engine  embedding.Engine
	store   Store
	library *patterns.Library
	alpha   float64
	logger  *zap.Logger

	mu          sync.RWMutex
	entries     map[string]*entry
	initialized bool
}

// Option configures an Index.
type Option func(*Index)

// WithStore persists vectors and affinity. Without it the index is
// memory-only and re-embeds on every start.
func WithStore(s Store) Option {
	return func(ix *Index) { ix.store = s }
}

// WithFusionAlpha sets the query weight used when fusing with a tenant.
func WithFusionAlpha(alpha float64) Option {
	return func(ix *Index) { ix.alpha = alpha }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger.Named("vectorindex")
		}
	}
}

// New creates an Index. engine may be nil, which leaves the index
// permanently unavailable.
func New(engine embedding.Engine, library *patterns.Library, opts ...Option) *Index {
	ix := &Index{
		engine:  engine,
		library: library,
		alpha:   patterns.DefaultFusionAlpha,
		logger:  zap.NewNop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

var _ patterns.VectorIndex = (*Index)(nil)

// IsAvailable reports whether an embedding engine is configured.
func (ix *Index) IsAvailable() bool {
	return ix != nil && ix.engine != nil && ix.library != nil
}

// IsInitialized reports whether Initialize has completed.
func (ix *Index) IsInitialized() bool {
	if ix == nil {
		return false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.initialized
}

// Len returns the number of indexed patterns.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// ─── Initialization ──────────────────────────────────────────────────────────

// Initialize embeds every pattern in the library. Vectors already stored for
// the same engine are reused, together with their learned affinity, which is
// also pushed back onto the library patterns. Calling it again picks up
// patterns registered since.
func (ix *Index) Initialize(ctx context.Context) error {
	if !ix.IsAvailable() {
		return nil
	}

	stored := make(map[string]store.PatternVector)
	if ix.store != nil {
		vectors, err := ix.store.ListPatternVectors(ctx)
		if err != nil {
			return err
		}
		for _, v := range vectors {
			if v.Model == ix.engine.Name() && len(v.Vector) == ix.engine.Dimensions() {
				stored[v.PatternID] = v
			}
		}
	}

	entries := make(map[string]*entry)
	var (
		missing []patterns.Pattern
		texts   []string
	)
	for _, p := range ix.library.List() {
		if v, ok := stored[p.ID]; ok {
			entries[p.ID] = &entry{vector: v.Vector, affinity: v.Affinity, words: ix.contentWords(PatternText(p))}
			if v.Affinity != nil {
				_ = ix.library.SetAffinity(p.ID, v.Affinity)
			}
			continue
		}
		missing = append(missing, p)
		texts = append(texts, PatternText(p))
	}

	if len(texts) > 0 {
		vectors, err := ix.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(missing) {
			return errors.New("vectorindex: embedding count mismatch")
		}
		for i, p := range missing {
			entries[p.ID] = &entry{vector: vectors[i], words: ix.contentWords(texts[i])}
			if ix.store == nil {
				continue
			}
			if err := ix.store.SavePatternVector(ctx, store.PatternVector{
				PatternID: p.ID,
				Model:     ix.engine.Name(),
				Vector:    vectors[i],
			}); err != nil {
				return err
			}
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.initialized = true
	ix.mu.Unlock()

	ix.logger.Info("vector index initialized",
		zap.String("engine", ix.engine.Name()),
		zap.Int("patterns", len(entries)),
		zap.Int("embedded", len(missing)),
	)
	return nil
}

// PatternText is the text a pattern is embedded from: its name, category,
// description, section names and default field names.
func PatternText(p patterns.Pattern) string {
	parts := []string{p.Name, p.Category, p.Description}
	for _, s := range p.Structure.Sections {
		parts = append(parts, s.Name)
	}
	for _, f := range p.Structure.DefaultFields {
		parts = append(parts, strings.ReplaceAll(f, "_", " "))
	}
	return strings.Join(parts, " ")
}

// ─── Search ──────────────────────────────────────────────────────────────────

// FindBestMatch returns the most similar pattern at or above minScore. With
// a tenant the query vector is fused with the tenant embedding first; this
// re-ranks, it never filters out a pattern. With a lexical engine only
// patterns sharing a content word with text are candidates.
func (ix *Index) FindBestMatch(ctx context.Context, text string, minScore float64, tenant *patterns.TenantContext) *patterns.PatternMatch {
	if !ix.IsAvailable() || !ix.IsInitialized() {
		return nil
	}

	query, err := ix.engine.Embed(ctx, text)
	if err != nil {
		ix.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}
	if tenant != nil {
		query = patterns.FuseEmbeddings(query, tenant.Embedding, ix.alpha)
	}

	queryWords := ix.contentWords(text)

	ix.mu.RLock()
	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	unit := embedding.Normalize(append([]float32(nil), query...))
	bestID, bestScore := "", 0.0
	for _, id := range ids {
		e := ix.entries[id]
		if e.words != nil && !overlaps(queryWords, e.words) {
			continue
		}
		score, err := embedding.CosineSimilarity(query, e.vector)
		if err != nil {
			continue
		}
		score = math.Min(1, score+dot(unit, e.affinity))
		if bestID == "" || score > bestScore {
			bestID, bestScore = id, score
		}
	}
	ix.mu.RUnlock()

	if bestID == "" || bestScore < minScore {
		return nil
	}
	p, err := ix.library.Get(bestID)
	if err != nil {
		return nil
	}
	return &patterns.PatternMatch{Pattern: p, Score: bestScore, Source: patterns.SourceVector}
}

// ─── Affinity ────────────────────────────────────────────────────────────────

// UpdatePatternAffinity adds delta times the unit vector of emb to the
// pattern's affinity, creating it as zeros on first use. A nil emb uses the
// pattern's own vector, so acceptance raises the pattern's score for every
// query in proportion to relevance and rejection lowers it. With a tenant
// embedding the bias applies to queries near that tenant's domain. Returns
// false when the pattern is not indexed or emb has the wrong dimension.
func (ix *Index) UpdatePatternAffinity(ctx context.Context, patternID string, emb []float32, delta float64) bool {
	if !ix.IsAvailable() || !ix.IsInitialized() {
		return false
	}

	ix.mu.Lock()
	e, ok := ix.entries[patternID]
	if !ok {
		ix.mu.Unlock()
		return false
	}
	if emb == nil {
		emb = e.vector
	}
	if len(emb) != len(e.vector) {
		ix.mu.Unlock()
		ix.logger.Warn("affinity dimension mismatch",
			zap.String("pattern", patternID),
			zap.Int("want", len(e.vector)),
			zap.Int("got", len(emb)),
		)
		return false
	}
	base := e.affinity
	if base == nil {
		base = make([]float32, len(e.vector))
	}
	e.affinity = embedding.Add(base, embedding.Normalize(append([]float32(nil), emb...)), delta)
	affinity := append([]float32(nil), e.affinity...)
	ix.mu.Unlock()

	if err := ix.library.SetAffinity(patternID, affinity); err != nil {
		ix.logger.Warn("library affinity update failed", zap.String("pattern", patternID), zap.Error(err))
	}
	if ix.store != nil {
		if err := ix.store.UpdateAffinity(ctx, patternID, affinity); err != nil {
			ix.logger.Warn("persisting affinity failed", zap.String("pattern", patternID), zap.Error(err))
			return false
		}
	}
	return true
}

// contentWords returns the word set of text for a lexical engine, nil
// otherwise.
func (ix *Index) contentWords(text string) map[string]struct{} {
	lex, ok := ix.engine.(embedding.Lexical)
	if !ok {
		return nil
	}
	words := make(map[string]struct{})
	for _, w := range lex.ContentWords(text) {
		words[w] = struct{}{}
	}
	return words
}

func overlaps(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

// dot returns a·b, or 0 when the lengths differ.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
