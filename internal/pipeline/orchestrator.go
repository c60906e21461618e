package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/HendryAvila/blueprint/internal/feedback"
	"github.com/HendryAvila/blueprint/internal/patterns"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/validation"
)

// AffinityDelta is the fixed step applied to a pattern's domain affinity
// per accepted or rejected outcome.
const AffinityDelta = 0.1

// Orchestrator runs the pipeline. It holds no per-run state, so one value
// serves concurrent callers as long as its collaborators do.
type Orchestrator struct {
	processor SignalProcessor
	predictor Predictor
	validator Validator

	index    patterns.VectorIndex
	tenants  TenantResolver
	outcomes feedback.OutcomeSink

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter
	inst   *instruments
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVectorIndex sets the index used by RecordOutcome.
func WithVectorIndex(idx patterns.VectorIndex) Option {
	return func(o *Orchestrator) { o.index = idx }
}

// WithTenantResolver sets how tenant IDs become embedding contexts.
func WithTenantResolver(r TenantResolver) Option {
	return func(o *Orchestrator) { o.tenants = r }
}

// WithOutcomeSink records every outcome event.
func WithOutcomeSink(s feedback.OutcomeSink) Option {
	return func(o *Orchestrator) { o.outcomes = s }
}

// WithConfig sets the default run configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithClock sets the time source for stage timing and outcome events.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter replaces the global OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator.
func New(processor SignalProcessor, predictor Predictor, validator Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		processor: processor,
		predictor: predictor,
		validator: validator,
		cfg:       DefaultConfig(),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.meter == nil {
		o.meter = defaultMeter()
	}
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}
	o.inst = newInstruments(o.meter)
	o.logger = o.logger.Named("pipeline")
	return o
}

// Execute runs signal processing, prediction and validation, then loops
// auto-fix until the structure is valid or the attempts run out. It never
// returns an error: stage failures are recorded on the result.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Result {
	start := o.now()
	cfg := o.cfg
	if req.Config != nil {
		cfg = *req.Config
	}
	cfg = req.Overrides.Apply(cfg)
	if cfg.MaxAutoFixAttempts < 0 {
		cfg.MaxAutoFixAttempts = 0
	}

	res := &Result{RequestID: uuid.NewString(), Stages: []StageResult{}}
	ctx, span := o.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("request_id", res.RequestID)))
	defer span.End()

	defer func() {
		res.Duration = o.now().Sub(start)
		o.inst.runs.Add(ctx, 1)
		if !res.Success {
			o.inst.failures.Add(ctx, 1)
		}
		span.SetAttributes(attribute.Bool("success", res.Success))
		o.logger.Info("pipeline run",
			zap.String("request_id", res.RequestID),
			zap.Bool("success", res.Success),
			zap.Bool("auto_fixed", res.AutoFixed),
			zap.Int("auto_fix_attempts", res.AutoFixAttempts),
			zap.Duration("duration", res.Duration),
		)
	}()

	// Signal processing.
	ok := o.runStage(ctx, res, StageSignalProcessing, 0, func(context.Context) error {
		sig, err := o.processor.Process(req.UserInput, req.Context)
		if err != nil {
			return err
		}
		res.Signal = &sig
		clarity := AssessClarity(sig)
		res.Clarity = &clarity
		return nil
	})
	if !ok {
		return res
	}

	res.TenantID = req.TenantID
	tenant := o.resolveTenant(ctx, req)
	if tenant != nil && tenant.TenantID != "" {
		res.TenantID = tenant.TenantID
	}

	// Prediction.
	var pred *prediction.StructurePrediction
	ok = o.runStage(ctx, res, StagePrediction, 0, func(ctx context.Context) error {
		p, err := o.predictor.Predict(ctx, *res.Signal, tenant)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("predictor returned no prediction")
		}
		pred = p
		return nil
	})
	if !ok {
		return res
	}

	// Validation.
	var vr *validation.Result
	ok = o.runStage(ctx, res, StageValidation, 0, func(ctx context.Context) error {
		r, err := o.validator.Validate(ctx, pred)
		if err != nil {
			return err
		}
		vr = r
		return nil
	})
	if !ok {
		return res
	}
	res.Prediction, res.Validation = pred, vr

	if cfg.EnableAutoFix {
		o.autoFix(ctx, res, cfg.MaxAutoFixAttempts)
	}

	res.Success = res.Validation.Valid
	return res
}

// autoFix loops fix then re-validate. It stops when the structure is valid,
// when the attempts are spent, when a round fails, or when the validator has
// no fixes to offer.
func (o *Orchestrator) autoFix(ctx context.Context, res *Result, maxAttempts int) {
	for attempt := 1; attempt <= maxAttempts && !res.Validation.Valid; attempt++ {
		fixes := res.Validation.Fixes()
		if len(fixes) == 0 {
			o.logger.Debug("validation failed with nothing to fix", zap.Strings("errors", res.Validation.Codes()))
			return
		}

		var (
			fixed *prediction.StructurePrediction
			vr    *validation.Result
		)
		ok := o.runStage(ctx, res, StageAutoFix, attempt, func(ctx context.Context) error {
			p, err := o.validator.AutoFix(ctx, res.Prediction, res.Validation)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("auto-fix returned no prediction")
			}
			r, err := o.validator.Validate(ctx, p)
			if err != nil {
				return fmt.Errorf("re-validating: %w", err)
			}
			fixed, vr = p, r
			return nil
		})
		res.AutoFixAttempts = attempt
		if !ok {
			return
		}

		o.inst.autoFixRounds.Add(ctx, 1)
		res.Prediction, res.Validation = fixed, vr
		res.AutoFixTrace = append(res.AutoFixTrace, AutoFixRound{
			Attempt: attempt, Fixes: fixes, Valid: vr.Valid, Score: vr.Score,
		})
		if vr.Valid {
			res.AutoFixed = true
		}
	}
}

// runStage times fn, recovers panics and records a StageResult.
func (o *Orchestrator) runStage(ctx context.Context, res *Result, stage Stage, attempt int, fn func(context.Context) error) (ok bool) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage),
		trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	start := o.now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", stage, r)
			}
		}()
		return fn(ctx)
	}()
	elapsed := o.now().Sub(start)

	sr := StageResult{Stage: stage, Attempt: attempt, Success: err == nil, Duration: elapsed}
	if err != nil {
		sr.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("stage failed",
			zap.String("request_id", res.RequestID),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	res.Stages = append(res.Stages, sr)

	o.inst.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("success", sr.Success),
	))
	return sr.Success
}

func (o *Orchestrator) resolveTenant(ctx context.Context, req Request) *patterns.TenantContext {
	if req.Tenant != nil {
		return req.Tenant
	}
	if req.TenantID == "" || o.tenants == nil {
		return nil
	}
	t := o.tenants.GetContext(ctx, req.TenantID)
	if t == nil {
		o.logger.Debug("tenant context unavailable", zap.String("tenant", req.TenantID))
	}
	return t
}

// RecordOutcome feeds a user verdict back into the pattern's domain affinity:
// +0.1 for accepted, -0.1 for rejected. A modified outcome carries no
// affinity signal. The event is always passed to the outcome sink; the
// returned event says whether the index applied the update.
func (o *Orchestrator) RecordOutcome(ctx context.Context, patternID, tenantID string, outcome feedback.Outcome) (feedback.OutcomeEvent, error) {
	if patternID == "" {
		return feedback.OutcomeEvent{}, fmt.Errorf("record outcome: %w", patterns.ErrPatternNotFound)
	}
	if _, err := feedback.ParseOutcome(string(outcome)); err != nil {
		return feedback.OutcomeEvent{}, fmt.Errorf("record outcome: %w", err)
	}

	ev := feedback.OutcomeEvent{
		PatternID: patternID,
		TenantID:  tenantID,
		Outcome:   outcome,
		Delta:     outcomeDelta(outcome),
		At:        o.now(),
	}

	if ev.Delta != 0 && o.index != nil && o.index.IsAvailable() {
		var embedding []float32
		if tenantID != "" && o.tenants != nil {
			if t := o.tenants.GetContext(ctx, tenantID); t != nil {
				embedding = t.Embedding
			}
		}
		ev.Applied = o.index.UpdatePatternAffinity(ctx, patternID, embedding, ev.Delta)
	}

	o.inst.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Bool("applied", ev.Applied),
	))

	if o.outcomes != nil {
		if err := o.outcomes.SaveOutcome(ctx, ev); err != nil {
			o.logger.Warn("saving outcome failed", zap.String("pattern", patternID), zap.Error(err))
		}
	}

	o.logger.Info("outcome recorded",
		zap.String("pattern", patternID),
		zap.String("tenant", tenantID),
		zap.String("outcome", string(outcome)),
		zap.Bool("applied", ev.Applied),
	)
	return ev, nil
}

func outcomeDelta(o feedback.Outcome) float64 {
	switch o {
	case feedback.OutcomeAccepted:
		return AffinityDelta
	case feedback.OutcomeRejected:
		return -AffinityDelta
	}
	return 0
}
