package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"production", func(c *Config) { *c = *ProductionConfig() }, ""},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "invalid trace exporter"},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling rate"},
		{"bad buffer", func(c *Config) { c.Events.BufferSize = 0 }, "buffer size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	l.NewComponentLogger("store").WithRevision("doc-1", 3).WithEntity(7, "Line").Debug("Loaded")

	out := buf.String()
	for _, want := range []string{
		`"component":"store"`,
		`"document_id":"doc-1"`,
		`"revision":3`,
		`"entity_id":7`,
		`"entity_type":"Line"`,
		`"message":"Loaded"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log line to contain %s, got: %s", want, out)
		}
	}
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Expected info to be filtered, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warning to be written, got: %s", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("Expected a logger")
	}
	l.Info("discarded")
}

func TestMetrics_RecordSolve(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.RecordSolve("root", OutcomeConverged, 4, 1e-12, 10*time.Millisecond)
	m.RecordSolve("root", OutcomeConverged, 2, 1e-13, time.Millisecond)
	m.RecordSolve("minimize", OutcomeNotConverged, 1000, 0.2, time.Second)
	m.RecordParse(nil)
	m.RecordParse(errors.New("bad"))
	m.SetEntityCount(12)
	m.RecordLintViolation("error")
	m.RecordStoreOperation("save_revision", nil)

	if got := testutil.ToFloat64(m.solves.WithLabelValues("root", OutcomeConverged)); got != 2 {
		t.Errorf("Expected 2 converged root solves, got %g", got)
	}
	if got := testutil.ToFloat64(m.solves.WithLabelValues("minimize", OutcomeNotConverged)); got != 1 {
		t.Errorf("Expected 1 failed minimize solve, got %g", got)
	}
	if got := testutil.ToFloat64(m.parses.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 parse error, got %g", got)
	}
	if got := testutil.ToFloat64(m.entities); got != 12 {
		t.Errorf("Expected entity gauge 12, got %g", got)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "sketcher_solves_total", "sketcher_parse_total")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 series, got %d", n)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	m.RecordSolve("root", OutcomeConverged, 1, 0, time.Millisecond)
	m.RecordParse(nil)
	m.SetEntityCount(1)
	if m.Registry() != nil {
		t.Error("Expected no registry for disabled metrics")
	}
}

func TestSolveObservation_Outcome(t *testing.T) {
	tests := []struct {
		obs  SolveObservation
		want string
	}{
		{SolveObservation{Converged: true, Iterations: 3}, OutcomeConverged},
		{SolveObservation{Iterations: 1000, Err: errors.New("not converged")}, OutcomeNotConverged},
		{SolveObservation{Err: errors.New("singular")}, OutcomeFailed},
		{SolveObservation{Iterations: 2, Err: context.Canceled}, OutcomeCancelled},
	}
	for _, tt := range tests {
		if got := tt.obs.Outcome(); got != tt.want {
			t.Errorf("Expected %s for %+v, got %s", tt.want, tt.obs, got)
		}
	}
}

func TestTelemetry_ObserveSolve(t *testing.T) {
	tel := Discard()
	var got []Event
	tel.Events.Subscribe(func(e Event) { got = append(got, e) }, nil)

	ctx := tel.WithContext(context.Background())
	tel.ObserveSolve(ctx, SolveObservation{
		Source:     "test",
		DocumentID: "doc",
		Kind:       "root",
		Entities:   3,
		Iterations: 5,
		Residual:   0.5,
		Err:        errors.New("not converged"),
	})

	if len(got) != 1 || got[0].Type != EventTypeSolveFailed || got[0].DocumentID != "doc" {
		t.Fatalf("Expected one solve.failed event, got %+v", got)
	}
	if c := testutil.ToFloat64(tel.Metrics.solves.WithLabelValues("root", OutcomeNotConverged)); c != 1 {
		t.Errorf("Expected 1 recorded solve, got %g", c)
	}
}

func TestEventPublisher_Async(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, MaxBatchSize: 4, EnableAsync: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	}, FilterByLevel(EventLevelWarning))

	for i := 0; i < 5; i++ {
		if err := ep.PublishSolve("test", "doc", i%2 == 0, i, 0); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("Expected 2 warning events, got %v", seen)
	}
	if err := ep.Publish(Event{Type: "late"}); err == nil {
		t.Error("Expected error after shutdown")
	}
}

func TestEventPublisher_Disabled(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.Publish(Event{Type: EventTypeSolveCompleted}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if called {
		t.Error("Expected no delivery from a disabled publisher")
	}
}

func TestTracer_Disabled(t *testing.T) {
	tr, err := NewTracer(TracingConfig{}, "sketcher", "test", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	ctx, span := tr.StartSolveSpan(context.Background(), "root", 3)
	RecordSuccess(span)
	span.End()
	if TraceID(ctx) == "" {
		t.Error("Expected a trace ID from the SDK provider")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestTracer_UnknownExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}, "sketcher", "test", "test")
	if err == nil {
		t.Error("Expected error for unknown exporter")
	}
}

func TestProfileConfig(t *testing.T) {
	tests := []struct {
		name       string
		wantEnv    string
		wantLevel  string
		wantFormat string
		wantErr    bool
	}{
		{"", "development", "info", "console", false},
		{"development", "development", "debug", "console", false},
		{"prod", "production", "info", "json", false},
		{"staging", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ProfileConfig(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown profile")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Expected valid profile, got: %v", err)
			}
			if cfg.Environment != tt.wantEnv {
				t.Errorf("Expected environment %s, got %s", tt.wantEnv, cfg.Environment)
			}
			if cfg.Logging.Level != tt.wantLevel || cfg.Logging.Format != tt.wantFormat {
				t.Errorf("Expected %s/%s logging, got %s/%s", tt.wantLevel, tt.wantFormat, cfg.Logging.Level, cfg.Logging.Format)
			}
		})
	}
}

func TestEventLog_Recent(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8, MaxBatchSize: 1})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	log := NewEventLog(3)
	ep.Subscribe(log.Record, nil)

	_ = ep.PublishSolve("cli", "", true, 3, 0)
	_ = ep.PublishRevision(EventTypeRevisionSaved, "doc-a", 1)
	_ = ep.PublishSolve("server", "doc-a", false, 1000, 0.5)
	_ = ep.PublishRevision(EventTypeRevisionSaved, "doc-b", 1)

	all := log.Recent(0)
	if len(all) != 3 {
		t.Fatalf("Expected 3 retained events, got %d", len(all))
	}
	if all[0].DocumentID != "doc-b" || all[2].Type != EventTypeRevisionSaved {
		t.Errorf("Expected newest first with the oldest evicted, got %+v", all)
	}

	tests := []struct {
		name    string
		limit   int
		filters []EventFilter
		want    int
	}{
		{"limit", 2, nil, 2},
		{"type", 0, []EventFilter{FilterByType(EventTypeRevisionSaved)}, 2},
		{"document", 0, []EventFilter{FilterByDocument("doc-a")}, 2},
		{"level", 0, []EventFilter{FilterByLevel(EventLevelWarning)}, 1},
		{"combined", 0, []EventFilter{FilterByDocument("doc-a"), FilterByType(EventTypeSolveFailed)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := log.Recent(tt.limit, tt.filters...); len(got) != tt.want {
				t.Errorf("Expected %d events, got %d", tt.want, len(got))
			}
		})
	}
}
