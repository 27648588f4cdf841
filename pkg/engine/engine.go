package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/sketcher/pkg/config"
	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/policy"
	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/stores"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

// Engine runs the sketch workflow: parse a script, resolve its
// constraints, lint the result and record revisions. It is safe for
// concurrent use; every call works on its own sketch.
type Engine struct {
	cfg       *config.Config
	tel       *telemetry.Telemetry
	policy    *policy.Engine
	store     stores.Store
	registry  *sketch.Registry
	library   geom.Library
	variables map[string]float64
	release   func(context.Context) error
	watcher   *policy.Loader
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore enables the document operations.
func WithStore(st stores.Store) Option {
	return func(e *Engine) { e.store = st }
}

// WithPolicyEngine replaces the policy engine built from the configuration.
func WithPolicyEngine(pe *policy.Engine) Option {
	return func(e *Engine) { e.policy = pe }
}

// WithRegistry sets the entity registry used to read scripts.
func WithRegistry(reg *sketch.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// New creates an engine. A nil cfg uses the defaults and a nil tel
// discards all telemetry.
func New(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if tel == nil {
		tel = telemetry.Discard()
	}

	e := &Engine{
		cfg:      cfg,
		tel:      tel,
		registry: sketch.DefaultRegistry(),
		logger:   tel.Logger.NewComponentLogger("engine").Zerolog(),
	}
	for _, opt := range opts {
		opt(e)
	}

	vars, err := cfg.ResolveVariables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variables: %w", err)
	}
	e.variables = vars

	lib, release, err := cfg.Library(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build curve library: %w", err)
	}
	e.library = lib
	e.release = release

	if e.policy == nil {
		if err := e.initPolicy(ctx); err != nil {
			_ = release(ctx)
			return nil, err
		}
	}

	e.logger.Debug().
		Str("plane", cfg.Plane).
		Str("solver", string(cfg.Solver.Kind)).
		Int("variables", len(vars)).
		Int("externals", len(cfg.Externals)).
		Bool("store", e.store != nil).
		Msg("Engine initialized")
	return e, nil
}

func (e *Engine) initPolicy(ctx context.Context) error {
	pe, err := policy.NewEngine(e.logger)
	if err != nil {
		return fmt.Errorf("failed to create policy engine: %w", err)
	}
	if len(e.cfg.Policy.Paths) > 0 {
		paths := make([]string, len(e.cfg.Policy.Paths))
		for i, p := range e.cfg.Policy.Paths {
			paths[i] = e.cfg.ResolvePath(p)
		}
		if err := pe.LoadPolicies(ctx, paths); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
		if e.cfg.Policy.Watch {
			loader, err := pe.Watch(ctx, paths)
			if err != nil {
				return fmt.Errorf("failed to watch policies: %w", err)
			}
			e.watcher = loader
		}
	}
	for _, name := range e.cfg.Policy.Disabled {
		if err := pe.SetEnabled(name, false); err != nil {
			return err
		}
	}
	e.policy = pe
	return nil
}

// Close stops the policy watcher and releases external curve runtimes.
// The store is owned by the caller and stays open.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.StopWatching())
	}
	if e.release != nil {
		errs = append(errs, e.release(ctx))
	}
	return errors.Join(errs...)
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Policy returns the policy engine.
func (e *Engine) Policy() *policy.Engine { return e.policy }

// Store returns the revision store, or nil.
func (e *Engine) Store() stores.Store { return e.store }

// Telemetry returns the telemetry the engine reports to.
func (e *Engine) Telemetry() *telemetry.Telemetry { return e.tel }

// Settings resolves the solver settings for a call. A nil override
// selects the configured settings.
func (e *Engine) Settings(override *solver.Settings) (solver.Settings, error) {
	st := e.cfg.Solver
	if override != nil {
		st = *override
	}
	if err := st.Validate(); err != nil {
		return st, NewError(ErrCodeInvalidRequest, "invalid solver settings", err)
	}
	return st, nil
}

// Parse reads a script into a new sketch on the configured plane.
func (e *Engine) Parse(ctx context.Context, source, script string) (*sketch.Sketch, error) {
	return e.parse(ctx, source, script, "", e.cfg.Solver)
}

func (e *Engine) parse(ctx context.Context, source, script, plane string, settings solver.Settings) (*sketch.Sketch, error) {
	ctx, span := e.tel.Tracer.StartParseSpan(ctx, source)
	defer span.End()

	if plane == "" {
		plane = e.cfg.Plane
	}
	datum, err := geom.PlaneByName(plane)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, NewError(ErrCodeInvalidRequest, err.Error(), err)
	}

	s := sketch.New(datum,
		sketch.WithLogger(e.logger.With().Str("source", source).Logger()),
		sketch.WithSolverSettings(settings),
		sketch.WithLibrary(e.library),
		sketch.WithRegistry(e.registry),
		sketch.WithVariables(e.variables),
	)
	_, err = s.ReadFrom(strings.NewReader(script))
	e.tel.Metrics.RecordParse(err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(telemetry.AttrEntityCount.Int(s.Len()))
	telemetry.RecordSuccess(span)
	return s, nil
}

// Solve parses a script and resolves its constraints. When the solver does
// not converge the result is returned together with an error matching
// solver.ErrNotConverged.
func (e *Engine) Solve(ctx context.Context, script string, opts SolveOptions) (*SolveResult, error) {
	settings, err := e.Settings(opts.Settings)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	op := telemetry.StartOperation(e.tel.WithContext(ctx), "solve",
		telemetry.AttrSource.String(opts.Source),
		telemetry.AttrDocumentID.String(opts.DocumentID),
	)

	s, err := e.parse(op.Ctx, opts.Source, script, opts.Plane, settings)
	if err != nil {
		op.End(err)
		return nil, err
	}

	res, err := e.resolve(op.Ctx, s, opts)
	op.End(err)
	return res, err
}

func (e *Engine) resolve(ctx context.Context, s *sketch.Sketch, opts SolveOptions) (*SolveResult, error) {
	settings := s.SolverSettings()
	ctx, span := e.tel.Tracer.StartSolveSpan(ctx, string(settings.Kind), s.Len())
	defer span.End()

	timer := telemetry.NewTimer()
	resolution, serr := s.ResolveConstraints(ctx, opts.Callback)

	obs := telemetry.SolveObservation{
		Source:     opts.Source,
		DocumentID: opts.DocumentID,
		Kind:       string(settings.Kind),
		Entities:   s.Len(),
		Duration:   timer.Duration(),
		Err:        serr,
	}
	if resolution != nil {
		obs.Iterations = resolution.Iterations
		obs.Residual = resolution.Residual
		obs.Converged = resolution.Converged
	}
	e.tel.ObserveSolve(ctx, obs)

	if resolution == nil {
		telemetry.RecordError(span, serr)
		return nil, serr
	}

	report, script, err := e.report(s, opts.Source)
	if err != nil {
		return nil, err
	}
	res := &SolveResult{
		Report:        *report,
		Script:        script,
		Settings:      settings,
		Converged:     resolution.Converged,
		Iterations:    resolution.Iterations,
		Residual:      resolution.Residual,
		Unconstrained: resolution.Unconstrained,
		Duration:      obs.Duration,
		Sketch:        s,
	}

	if opts.Lint {
		lint, err := e.lint(ctx, res.Summary, opts.Source, true)
		if err != nil {
			return nil, err
		}
		res.Lint = lint
	}

	if serr != nil {
		telemetry.RecordError(span, serr)
	} else {
		telemetry.RecordSuccess(span)
	}
	return res, serr
}

// report summarizes s and regenerates its script.
func (e *Engine) report(s *sketch.Sketch, source string) (*Report, string, error) {
	sum, err := s.Summary()
	if err != nil {
		return nil, "", err
	}
	h, err := s.Hash()
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := s.GenerateScript(&buf); err != nil {
		return nil, "", err
	}
	return &Report{
		Source:  source,
		Hash:    fmt.Sprintf("%016x", h),
		Summary: sum,
	}, buf.String(), nil
}

// Validate parses a script without solving it and reports its summary.
func (e *Engine) Validate(ctx context.Context, source, script string) (*Report, error) {
	op := telemetry.StartOperation(e.tel.WithContext(ctx), "validate", telemetry.AttrSource.String(source))
	s, err := e.parse(op.Ctx, source, script, "", e.cfg.Solver)
	if err != nil {
		op.End(err)
		return nil, err
	}
	report, _, err := e.report(s, source)
	op.End(err)
	return report, err
}

// Lint evaluates the design rules against a script. With solve set the
// script is solved first so residual rules apply; a solve that does not
// converge is reported by those rules rather than as an error.
func (e *Engine) Lint(ctx context.Context, source, script string, solve bool) (*Report, error) {
	if solve {
		res, err := e.Solve(ctx, script, SolveOptions{Source: source, Lint: true})
		if res == nil {
			return nil, err
		}
		if err != nil && !errors.Is(err, solver.ErrNotConverged) {
			return nil, err
		}
		return &res.Report, nil
	}

	report, err := e.Validate(ctx, source, script)
	if err != nil {
		return nil, err
	}
	lint, err := e.lint(ctx, report.Summary, source, false)
	if err != nil {
		return nil, err
	}
	report.Lint = lint
	return report, nil
}

func (e *Engine) lint(ctx context.Context, sum *sketch.Summary, source string, solved bool) (*policy.Result, error) {
	ctx, span := e.tel.Tracer.StartLintSpan(ctx, len(e.policy.ListPolicies()))
	defer span.End()

	res, err := e.policy.Evaluate(ctx, sum, policy.Context{
		Source:    source,
		Solved:    solved,
		Timestamp: time.Now(),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to evaluate policies: %w", err)
	}

	for _, v := range res.Violations {
		e.tel.Metrics.RecordLintViolation(string(v.Severity))
		if v.Severity != policy.SeverityError {
			continue
		}
		data := map[string]interface{}{"policy": v.Policy}
		if v.Entity != nil {
			data["entity"] = *v.Entity
		}
		_ = e.tel.Events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeLintViolation,
			Source:  source,
			Message: v.Message,
			Level:   telemetry.EventLevelError,
			Data:    data,
		})
	}
	telemetry.RecordSuccess(span)
	return res, nil
}

// LintFailed reports whether res has violations at or above the configured
// fail_on severity.
func (e *Engine) LintFailed(res *policy.Result) bool {
	if res == nil {
		return false
	}
	sev, ok := policy.ParseSeverity(e.cfg.Policy.FailOn)
	if !ok {
		sev = policy.SeverityError
	}
	return res.Count(sev) > 0
}

// Format parses a script and writes it back in canonical form.
func (e *Engine) Format(ctx context.Context, source, script string) (string, error) {
	s, err := e.Parse(ctx, source, script)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.GenerateScript(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Graph parses a script and renders its dependency graph in DOT.
func (e *Engine) Graph(ctx context.Context, source, script string) (string, error) {
	s, err := e.Parse(ctx, source, script)
	if err != nil {
		return "", err
	}
	g, err := sketch.BuildGraph(s)
	if err != nil {
		return "", err
	}
	return g.ToDOT(), nil
}
