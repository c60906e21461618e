// Package store persists everything blueprint learns between runs: pattern
// vectors and their learned affinity, tenant context embeddings, grounding
// snapshots, learning signals and outcome events.
//
// It uses SQLite (pure Go, modernc.org/sqlite) in WAL mode. Vectors are
// stored as JSON arrays since they are only ever read back whole.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("store: not found")

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ─── Types ───────────────────────────────────────────────────────────────────

// PatternVector is a pattern's embedding plus the affinity learned from
// outcomes. Model records which embedding engine produced Vector so a
// provider switch invalidates it.
type PatternVector struct {
	PatternID string    `json:"pattern_id"`
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
	Affinity  []float32 `json:"affinity,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantContext is the stored embedding of a tenant's domain context.
type TenantContext struct {
	TenantID    string    `json:"tenant_id"`
	Model       string    `json:"model"`
	Embedding   []float32 `json:"embedding"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config holds store settings.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
}

// DefaultConfig returns the default configuration for the store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".blueprint")}
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "blueprint.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.DataDir, "blueprint.db")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pattern_vectors (
			pattern_id TEXT PRIMARY KEY,
			model      TEXT NOT NULL,
			vector     TEXT NOT NULL,
			affinity   TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tenant_contexts (
			tenant_id    TEXT PRIMARY KEY,
			model        TEXT NOT NULL,
			embedding    TEXT NOT NULL,
			sample_count INTEGER NOT NULL DEFAULT 0,
			updated_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pattern_confidence (
			pattern_id      TEXT PRIMARY KEY,
			base            REAL    NOT NULL,
			decay_rate      REAL    NOT NULL,
			grounding_count INTEGER NOT NULL DEFAULT 0,
			last_grounded   TEXT,
			updated_at      TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS learning_signals (
			id            TEXT PRIMARY KEY,
			session_id    TEXT    NOT NULL,
			pattern_id    TEXT,
			tenant_id     TEXT,
			outcome       TEXT    NOT NULL,
			weight        REAL    NOT NULL,
			rating        INTEGER NOT NULL DEFAULT 0,
			comment       TEXT,
			modifications TEXT    NOT NULL,
			created_at    TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS outcomes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_id TEXT    NOT NULL,
			tenant_id  TEXT,
			outcome    TEXT    NOT NULL,
			delta      REAL    NOT NULL,
			applied    INTEGER NOT NULL DEFAULT 0,
			at         TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_pattern ON learning_signals(pattern_id);
		CREATE INDEX IF NOT EXISTS idx_signals_session ON learning_signals(session_id);
		CREATE INDEX IF NOT EXISTS idx_outcomes_pattern ON outcomes(pattern_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Pattern vectors ─────────────────────────────────────────────────────────

// SavePatternVector upserts a pattern's embedding and affinity.
func (s *Store) SavePatternVector(ctx context.Context, v PatternVector) error {
	vec, err := json.Marshal(v.Vector)
	if err != nil {
		return fmt.Errorf("store: encode vector: %w", err)
	}
	var aff *string
	if v.Affinity != nil {
		b, err := json.Marshal(v.Affinity)
		if err != nil {
			return fmt.Errorf("store: encode affinity: %w", err)
		}
		str := string(b)
		aff = &str
	}
	updated := v.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pattern_vectors (pattern_id, model, vector, affinity, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			model = excluded.model,
			vector = excluded.vector,
			affinity = excluded.affinity,
			updated_at = excluded.updated_at`,
		v.PatternID, v.Model, string(vec), aff, updated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: save pattern vector %s: %w", v.PatternID, err)
	}
	return nil
}

// GetPatternVector loads one pattern vector, or ErrNotFound.
func (s *Store) GetPatternVector(ctx context.Context, patternID string) (PatternVector, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pattern_id, model, vector, affinity, updated_at
		 FROM pattern_vectors WHERE pattern_id = ?`, patternID)
	v, err := scanPatternVector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PatternVector{}, fmt.Errorf("%w: pattern vector %s", ErrNotFound, patternID)
	}
	return v, err
}

// ListPatternVectors returns every stored pattern vector ordered by ID.
func (s *Store) ListPatternVectors(ctx context.Context) ([]PatternVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, model, vector, affinity, updated_at
		 FROM pattern_vectors ORDER BY pattern_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list pattern vectors: %w", err)
	}
	defer rows.Close()

	var out []PatternVector
	for rows.Next() {
		v, err := scanPatternVector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateAffinity replaces only the affinity of an existing pattern vector.
func (s *Store) UpdateAffinity(ctx context.Context, patternID string, affinity []float32) error {
	b, err := json.Marshal(affinity)
	if err != nil {
		return fmt.Errorf("store: encode affinity: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pattern_vectors SET affinity = ?, updated_at = ? WHERE pattern_id = ?`,
		string(b), s.now().UTC().Format(timeLayout), patternID)
	if err != nil {
		return fmt.Errorf("store: update affinity %s: %w", patternID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pattern vector %s", ErrNotFound, patternID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPatternVector(sc scanner) (PatternVector, error) {
	var (
		v       PatternVector
		vec     string
		aff     sql.NullString
		updated string
	)
	if err := sc.Scan(&v.PatternID, &v.Model, &vec, &aff, &updated); err != nil {
		return PatternVector{}, err
	}
	if err := json.Unmarshal([]byte(vec), &v.Vector); err != nil {
		return PatternVector{}, fmt.Errorf("store: decode vector %s: %w", v.PatternID, err)
	}
	if aff.Valid {
		if err := json.Unmarshal([]byte(aff.String), &v.Affinity); err != nil {
			return PatternVector{}, fmt.Errorf("store: decode affinity %s: %w", v.PatternID, err)
		}
	}
	v.UpdatedAt = parseTime(updated)
	return v, nil
}

// ─── Tenant contexts ─────────────────────────────────────────────────────────

// SaveTenantContext upserts a tenant's context embedding.
func (s *Store) SaveTenantContext(ctx context.Context, tc TenantContext) error {
	emb, err := json.Marshal(tc.Embedding)
	if err != nil {
		return fmt.Errorf("store: encode embedding: %w", err)
	}
	updated := tc.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_contexts (tenant_id, model, embedding, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			model = excluded.model,
			embedding = excluded.embedding,
			sample_count = excluded.sample_count,
			updated_at = excluded.updated_at`,
		tc.TenantID, tc.Model, string(emb), tc.SampleCount, updated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: save tenant context %s: %w", tc.TenantID, err)
	}
	return nil
}

// GetTenantContext loads a tenant context, or ErrNotFound.
func (s *Store) GetTenantContext(ctx context.Context, tenantID string) (TenantContext, error) {
	var (
		tc      TenantContext
		emb     string
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, model, embedding, sample_count, updated_at
		 FROM tenant_contexts WHERE tenant_id = ?`, tenantID,
	).Scan(&tc.TenantID, &tc.Model, &emb, &tc.SampleCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return TenantContext{}, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	if err != nil {
		return TenantContext{}, fmt.Errorf("store: get tenant context %s: %w", tenantID, err)
	}
	if err := json.Unmarshal([]byte(emb), &tc.Embedding); err != nil {
		return TenantContext{}, fmt.Errorf("store: decode embedding %s: %w", tenantID, err)
	}
	tc.UpdatedAt = parseTime(updated)
	return tc, nil
}

// ─── Confidence snapshots ────────────────────────────────────────────────────

// SaveConfidence upserts the grounding state of one pattern.
func (s *Store) SaveConfidence(ctx context.Context, patternID string, c patterns.PatternConfidence) error {
	var last *string
	if c.LastGrounded != nil {
		str := c.LastGrounded.UTC().Format(timeLayout)
		last = &str
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pattern_confidence (pattern_id, base, decay_rate, grounding_count, last_grounded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			base = excluded.base,
			decay_rate = excluded.decay_rate,
			grounding_count = excluded.grounding_count,
			last_grounded = excluded.last_grounded,
			updated_at = excluded.updated_at`,
		patternID, c.Base, c.DecayRate, c.GroundingCount, last, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: save confidence %s: %w", patternID, err)
	}
	return nil
}

// LoadConfidence returns every stored grounding snapshot keyed by pattern ID.
func (s *Store) LoadConfidence(ctx context.Context) (map[string]patterns.PatternConfidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, base, decay_rate, grounding_count, last_grounded FROM pattern_confidence`)
	if err != nil {
		return nil, fmt.Errorf("store: load confidence: %w", err)
	}
	defer rows.Close()

	out := make(map[string]patterns.PatternConfidence)
	for rows.Next() {
		var (
			id   string
			c    patterns.PatternConfidence
			last sql.NullString
		)
		if err := rows.Scan(&id, &c.Base, &c.DecayRate, &c.GroundingCount, &last); err != nil {
			return nil, fmt.Errorf("store: scan confidence: %w", err)
		}
		if last.Valid {
			t := parseTime(last.String)
			c.LastGrounded = &t
		}
		out[id] = c
	}
	return out, rows.Err()
}

// ─── Learning signals ────────────────────────────────────────────────────────

// SaveLearningSignal implements feedback.Sink.
func (s *Store) SaveLearningSignal(ctx context.Context, sig feedback.LearningSignal) error {
	mods := sig.Modifications
	if mods == nil {
		mods = []feedback.ModificationEvent{}
	}
	b, err := json.Marshal(mods)
	if err != nil {
		return fmt.Errorf("store: encode modifications: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learning_signals
			(id, session_id, pattern_id, tenant_id, outcome, weight, rating, comment, modifications, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.SessionID, sig.PatternID, sig.TenantID, string(sig.Outcome),
		sig.Weight, sig.Rating, sig.Comment, string(b), sig.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: save learning signal %s: %w", sig.ID, err)
	}
	return nil
}

// ListLearningSignals returns signals newest first. An empty patternID
// returns all of them; limit <= 0 means no limit.
func (s *Store) ListLearningSignals(ctx context.Context, patternID string, limit int) ([]feedback.LearningSignal, error) {
	query := `SELECT id, session_id, pattern_id, tenant_id, outcome, weight, rating, comment, modifications, created_at
		FROM learning_signals`
	var args []any
	if patternID != "" {
		query += " WHERE pattern_id = ?"
		args = append(args, patternID)
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list learning signals: %w", err)
	}
	defer rows.Close()

	var out []feedback.LearningSignal
	for rows.Next() {
		var (
			sig                        feedback.LearningSignal
			patternID, tenant, comment sql.NullString
			outcome, mods, created     string
		)
		if err := rows.Scan(&sig.ID, &sig.SessionID, &patternID, &tenant, &outcome,
			&sig.Weight, &sig.Rating, &comment, &mods, &created); err != nil {
			return nil, fmt.Errorf("store: scan learning signal: %w", err)
		}
		sig.PatternID = patternID.String
		sig.TenantID = tenant.String
		sig.Comment = comment.String
		sig.Outcome = feedback.Outcome(outcome)
		if err := json.Unmarshal([]byte(mods), &sig.Modifications); err != nil {
			return nil, fmt.Errorf("store: decode modifications %s: %w", sig.ID, err)
		}
		sig.CreatedAt = parseTime(created)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// ─── Outcomes ────────────────────────────────────────────────────────────────

// SaveOutcome implements feedback.OutcomeSink.
func (s *Store) SaveOutcome(ctx context.Context, e feedback.OutcomeEvent) error {
	applied := 0
	if e.Applied {
		applied = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (pattern_id, tenant_id, outcome, delta, applied, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.PatternID, e.TenantID, string(e.Outcome), e.Delta, applied, e.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: save outcome %s: %w", e.PatternID, err)
	}
	return nil
}

// ListOutcomes returns outcome events for a pattern (all when empty),
// oldest first.
func (s *Store) ListOutcomes(ctx context.Context, patternID string) ([]feedback.OutcomeEvent, error) {
	query := `SELECT pattern_id, tenant_id, outcome, delta, applied, at FROM outcomes`
	var args []any
	if patternID != "" {
		query += " WHERE pattern_id = ?"
		args = append(args, patternID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []feedback.OutcomeEvent
	for rows.Next() {
		var (
			e           feedback.OutcomeEvent
			tenant      sql.NullString
			outcome, at string
			applied     int
		)
		if err := rows.Scan(&e.PatternID, &tenant, &outcome, &e.Delta, &applied, &at); err != nil {
			return nil, fmt.Errorf("store: scan outcome: %w", err)
		}
		e.TenantID = tenant.String
		e.Outcome = feedback.Outcome(outcome)
		e.Applied = applied == 1
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats is a row count summary.
type Stats struct {
	PatternVectors   int `json:"pattern_vectors"`
	TenantContexts   int `json:"tenant_contexts"`
	GroundedPatterns int `json:"grounded_patterns"`
	LearningSignals  int `json:"learning_signals"`
	Outcomes         int `json:"outcomes"`
}

// Stats counts rows in every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"pattern_vectors", &st.PatternVectors},
		{"tenant_contexts", &st.TenantContexts},
		{"pattern_confidence", &st.GroundedPatterns},
		{"learning_signals", &st.LearningSignals},
		{"outcomes", &st.Outcomes},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("store: count %s: %w", c.table, err)
		}
	}
	return st, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
