// Package tenant supplies per-tenant domain embeddings. A tenant is a company,
// or a project within a company, and its context is one embedding of how that
// tenant describes its work. Pattern matching fuses it into the query so the
// tenant's domain re-ranks patterns without filtering any out.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/embedding"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/store"
)

// DefaultCacheSize is the number of tenant contexts kept in memory.
const DefaultCacheSize = 1024

var (
	// ErrUnavailable is returned when no embedding engine is configured.
	ErrUnavailable = errors.New("tenant: embedding engine not configured")
	// ErrEmptyTenant is returned for a blank tenant ID.
	ErrEmptyTenant = errors.New("tenant: empty tenant id")
)

// AuthContext is the identity attached to an inbound request by whatever
// authenticated it. Only Company and Project are read here.
type AuthContext struct {
	UserID     string   `json:"user_id"`
	Company    string   `json:"company"`
	Project    string   `json:"project,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	AuthMethod string   `json:"auth_method,omitempty"`
}

// TenantID derives the tenant key: "company" or "company/project". An empty
// company yields "".
func TenantID(auth AuthContext) string {
	company := strings.TrimSpace(auth.Company)
	if company == "" {
		return ""
	}
	if project := strings.TrimSpace(auth.Project); project != "" {
		return company + "/" + project
	}
	return company
}

// Store is the persistence the provider needs. *store.Store satisfies it.
type Store interface {
	GetTenantContext(ctx context.Context, tenantID string) (store.TenantContext, error)
	SaveTenantContext(ctx context.Context, tc store.TenantContext) error
}

// Provider looks tenant contexts up through an LRU cache in front of the store.
type Provider struct {
	engine embedding.Engine
	store  Store
	cache  *lru.Cache[string, store.TenantContext]
	logger *zap.Logger
}

// NewProvider creates a Provider. engine may be nil, in which case every
// lookup returns nil. st may be nil for a memory-only provider.
func NewProvider(engine embedding.Engine, st Store, cacheSize int, logger *zap.Logger) (*Provider, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, store.TenantContext](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("tenant: create cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{engine: engine, store: st, cache: cache, logger: logger.Named("tenant")}, nil
}

// GetContext returns the tenant's context, or nil when the tenant has none,
// the engine is missing, or the stored embedding came from another engine.
func (p *Provider) GetContext(ctx context.Context, tenantID string) *patterns.TenantContext {
	if p == nil || p.engine == nil || tenantID == "" {
		return nil
	}
	tc, ok := p.lookup(ctx, tenantID)
	if !ok {
		return nil
	}
	return &patterns.TenantContext{
		TenantID:  tc.TenantID,
		Embedding: append([]float32(nil), tc.Embedding...),
	}
}

func (p *Provider) lookup(ctx context.Context, tenantID string) (store.TenantContext, bool) {
	if tc, ok := p.cache.Get(tenantID); ok {
		return tc, true
	}
	if p.store == nil {
		return store.TenantContext{}, false
	}
	tc, err := p.store.GetTenantContext(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("tenant lookup failed", zap.String("tenant", tenantID), zap.Error(err))
		}
		return store.TenantContext{}, false
	}
	if tc.Model != p.engine.Name() {
		return store.TenantContext{}, false
	}
	p.cache.Add(tenantID, tc)
	return tc, true
}

// Initialize embeds description as the tenant's context, replacing any
// existing one.
func (p *Provider) Initialize(ctx context.Context, tenantID, description string) (*patterns.TenantContext, error) {
	if p == nil || p.engine == nil {
		return nil, ErrUnavailable
	}
	if tenantID == "" {
		return nil, ErrEmptyTenant
	}
	vec, err := p.engine.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("tenant: embed %s: %w", tenantID, err)
	}
	tc := store.TenantContext{TenantID: tenantID, Model: p.engine.Name(), Embedding: vec, SampleCount: 1}
	if err := p.save(ctx, tc); err != nil {
		return nil, err
	}
	p.logger.Info("tenant context initialized", zap.String("tenant", tenantID))
	return &patterns.TenantContext{TenantID: tenantID, Embedding: append([]float32(nil), vec...)}, nil
}

// Observe folds text into the tenant's context as a running mean, so the
// context drifts towards what the tenant actually asks for. A tenant without
// a context is initialised from text.
func (p *Provider) Observe(ctx context.Context, tenantID, text string) error {
	if p == nil || p.engine == nil {
		return ErrUnavailable
	}
	if tenantID == "" {
		return ErrEmptyTenant
	}
	tc, ok := p.lookup(ctx, tenantID)
	if !ok {
		_, err := p.Initialize(ctx, tenantID, text)
		return err
	}
	vec, err := p.engine.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("tenant: embed %s: %w", tenantID, err)
	}
	if len(vec) != len(tc.Embedding) {
		return fmt.Errorf("tenant: dimension mismatch for %s: %d != %d", tenantID, len(vec), len(tc.Embedding))
	}

	n := float64(tc.SampleCount)
	if n < 1 {
		n = 1
	}
	mean := make([]float32, len(vec))
	for i := range vec {
		mean[i] = float32((float64(tc.Embedding[i])*n + float64(vec[i])) / (n + 1))
	}
	tc.Embedding = mean
	tc.SampleCount = int(n) + 1
	tc.UpdatedAt = time.Time{}
	return p.save(ctx, tc)
}

// Resolve maps an AuthContext to a tenant context. When the tenant has none
// yet and description is non-empty, it is initialised from description.
// Failures degrade to nil.
func (p *Provider) Resolve(ctx context.Context, auth AuthContext, description string) *patterns.TenantContext {
	id := TenantID(auth)
	if id == "" {
		return nil
	}
	if tc := p.GetContext(ctx, id); tc != nil {
		return tc
	}
	if description == "" {
		return nil
	}
	tc, err := p.Initialize(ctx, id, description)
	if err != nil {
		if p != nil {
			p.logger.Warn("tenant initialization failed", zap.String("tenant", id), zap.Error(err))
		}
		return nil
	}
	return tc
}

func (p *Provider) save(ctx context.Context, tc store.TenantContext) error {
	if p.store != nil {
		if err := p.store.SaveTenantContext(ctx, tc); err != nil {
			return fmt.Errorf("tenant: save %s: %w", tc.TenantID, err)
		}
	}
	p.cache.Add(tc.TenantID, tc)
	return nil
}
