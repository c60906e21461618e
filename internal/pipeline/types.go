package pipeline

import (
	"context"
	"time"

	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/signal"
	"github.com/HendryAvila/blueprint/internal/validation"
)

// Stage names a pipeline step.
type Stage string

const (
	StageSignalProcessing Stage = "signal_processing"
	StagePrediction       Stage = "prediction"
	StageValidation       Stage = "validation"
	StageAutoFix          Stage = "auto_fix"
)

// DefaultMaxAutoFixAttempts bounds the auto-fix loop.
const DefaultMaxAutoFixAttempts = 3

// Config controls one run.
type Config struct {
	EnableAutoFix      bool `json:"enable_auto_fix" mapstructure:"enable_auto_fix"`
	MaxAutoFixAttempts int  `json:"max_auto_fix_attempts" mapstructure:"max_auto_fix_attempts"`
}

// DefaultConfig enables auto-fix with three attempts.
func DefaultConfig() Config {
	return Config{EnableAutoFix: true, MaxAutoFixAttempts: DefaultMaxAutoFixAttempts}
}

// Overrides adjusts single settings of the orchestrator's configuration for
// one run. Nil fields keep the configured value.
type Overrides struct {
	EnableAutoFix      *bool
	MaxAutoFixAttempts *int
}

// Apply returns cfg with the set fields replaced.
func (ov Overrides) Apply(cfg Config) Config {
	if ov.EnableAutoFix != nil {
		cfg.EnableAutoFix = *ov.EnableAutoFix
	}
	if ov.MaxAutoFixAttempts != nil {
		cfg.MaxAutoFixAttempts = *ov.MaxAutoFixAttempts
	}
	return cfg
}

// Request is one requirement to turn into a module.
type Request struct {
	UserInput string
	Context   []string
	// Config replaces the orchestrator default for this run.
	Config *Config
	// Overrides is applied after Config.
	Overrides Overrides
	// Tenant is used as is when set; otherwise TenantID is resolved.
	Tenant   *patterns.TenantContext
	TenantID string
}

// StageResult records how one stage went.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Attempt  int           `json:"attempt,omitempty"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// AutoFixRound is one fix-and-revalidate iteration.
type AutoFixRound struct {
	Attempt int              `json:"attempt"`
	Fixes   []validation.Fix `json:"fixes"`
	Valid   bool             `json:"valid"`
	Score   float64          `json:"score"`
}

// Result aggregates one run. Prediction is nil when signal processing or
// prediction failed, and also when validation itself errored.
type Result struct {
	RequestID       string                          `json:"request_id"`
	Success         bool                            `json:"success"`
	TenantID        string                          `json:"tenant_id,omitempty"`
	Signal          *signal.ProcessedSignal         `json:"signal,omitempty"`
	Clarity         *ClarityReport                  `json:"clarity,omitempty"`
	Prediction      *prediction.StructurePrediction `json:"prediction"`
	Validation      *validation.Result              `json:"validation,omitempty"`
	AutoFixed       bool                            `json:"auto_fixed"`
	AutoFixAttempts int                             `json:"auto_fix_attempts"`
	AutoFixTrace    []AutoFixRound                  `json:"auto_fix_trace,omitempty"`
	Stages          []StageResult                   `json:"stages"`
	Duration        time.Duration                   `json:"duration"`
}

// ─── Collaborators ───────────────────────────────────────────────────────────

// SignalProcessor classifies the raw requirement.
type SignalProcessor interface {
	Process(text string, context []string) (signal.ProcessedSignal, error)
}

// Predictor turns a signal into a structure.
type Predictor interface {
	Predict(ctx context.Context, sig signal.ProcessedSignal, tenant *patterns.TenantContext) (*prediction.StructurePrediction, error)
}

// Validator checks structures and repairs them.
type Validator interface {
	Validate(ctx context.Context, p *prediction.StructurePrediction) (*validation.Result, error)
	AutoFix(ctx context.Context, p *prediction.StructurePrediction, r *validation.Result) (*prediction.StructurePrediction, error)
}

// TenantResolver looks up a tenant's embedding context. It returns nil when
// the tenant is unknown or the provider is unavailable.
type TenantResolver interface {
	GetContext(ctx context.Context, tenantID string) *patterns.TenantContext
}
