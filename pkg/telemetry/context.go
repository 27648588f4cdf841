package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return build(cfg, logger)
}

// Discard returns telemetry that records metrics and events in memory but
// writes no logs and exports no spans.
func Discard() *Telemetry {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = false
	tel, err := build(cfg, NewLoggerTo(io.Discard, cfg.Logging))
	if err != nil {
		panic(err)
	}
	return tel
}

func build(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event publisher and the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// StartMetricsServer starts the standalone metrics listener.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation. Without telemetry in
// the context only the timer is active.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the operation, recording success or failure on the span.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// SolveObservation describes one finished constraint resolution.
type SolveObservation struct {
	Source     string
	DocumentID string
	Kind       string
	Entities   int
	Iterations int
	Residual   float64
	Converged  bool
	Duration   time.Duration
	Err        error
}

// Outcome classifies the observation for metric labels.
func (o SolveObservation) Outcome() string {
	switch {
	case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		return OutcomeCancelled
	case o.Converged:
		return OutcomeConverged
	case o.Iterations > 0 && o.Err != nil:
		return OutcomeNotConverged
	case o.Err != nil:
		return OutcomeFailed
	default:
		return OutcomeConverged
	}
}

// ObserveSolve records metrics, span attributes, an event and a log line
// for a resolution.
func (t *Telemetry) ObserveSolve(ctx context.Context, obs SolveObservation) {
	outcome := obs.Outcome()
	t.Metrics.RecordSolve(obs.Kind, outcome, obs.Iterations, obs.Residual, obs.Duration)
	t.Metrics.SetEntityCount(obs.Entities)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		AttrSolverKind.String(obs.Kind),
		AttrSolverIterations.Int(obs.Iterations),
		AttrSolverResidual.Float64(obs.Residual),
		AttrSolverConverged.Bool(obs.Converged),
	)

	logger := FromContext(ctx)
	if FromTelemetryContext(ctx) == nil {
		logger = t.Logger
	}
	ev := logger.zlog.Info()
	if outcome != OutcomeConverged {
		ev = logger.zlog.Warn().Err(obs.Err)
	}
	ev.Str("solver", obs.Kind).
		Str("outcome", outcome).
		Int("entities", obs.Entities).
		Int("iterations", obs.Iterations).
		Float64("residual", obs.Residual).
		Dur("duration", obs.Duration).
		Msg("Constraints resolved")

	if err := t.Events.PublishSolve(obs.Source, obs.DocumentID, obs.Converged, obs.Iterations, obs.Residual); err != nil {
		logger.WithError(err).Warn("Failed to publish solve event")
	}
}
