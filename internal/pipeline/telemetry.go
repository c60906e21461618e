package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "blueprint.pipeline"

type instruments struct {
	runs          metric.Int64Counter
	failures      metric.Int64Counter
	autoFixRounds metric.Int64Counter
	outcomes      metric.Int64Counter
	stageDuration metric.Float64Histogram
}

func defaultMeter() metric.Meter  { return otel.Meter(instrumentationName) }
func defaultTracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// newInstruments creates the pipeline instruments on meter. An instrument the
// meter refuses is replaced by a no-op so recording never needs a nil check.
func newInstruments(meter metric.Meter) *instruments {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil || c == nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	hist, err := meter.Float64Histogram("blueprint_stage_duration_seconds",
		metric.WithDescription("Duration of each pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil || hist == nil {
		hist, _ = fallback.Float64Histogram("blueprint_stage_duration_seconds")
	}

	return &instruments{
		runs:          counter("blueprint_pipeline_runs_total", "Total pipeline runs"),
		failures:      counter("blueprint_pipeline_failures_total", "Pipeline runs that did not end valid"),
		autoFixRounds: counter("blueprint_autofix_rounds_total", "Auto-fix rounds applied"),
		outcomes:      counter("blueprint_outcomes_total", "Outcome feedback events"),
		stageDuration: hist,
	}
}
