package config

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/solver"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}
	if cfg.Plane != "XY" {
		t.Errorf("Expected plane XY, got %s", cfg.Plane)
	}
	if cfg.Solver != solver.DefaultSettings() {
		t.Errorf("Expected default solver settings, got %+v", cfg.Solver)
	}
	if cfg.Policy.FailOn != "error" {
		t.Errorf("Expected fail_on error, got %s", cfg.Policy.FailOn)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad plane", func(c *Config) { c.Plane = "UV" }, "Plane"},
		{"bad relax", func(c *Config) { c.Solver.Relax = 2 }, "Relax"},
		{"bad solver", func(c *Config) { c.Solver.Kind = "newton" }, "Kind"},
		{"no store path", func(c *Config) { c.Store.Path = "" }, "Path"},
		{"bad fail_on", func(c *Config) { c.Policy.FailOn = "fatal" }, "FailOn"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "loud" }, "log level"},
		{
			name: "segment without end",
			mutate: func(c *Config) {
				c.Externals = []ExternalCurve{{Name: "rail", Kind: "segment", From: []float64{0, 0, 0}}}
			},
			wantErr: "from and to",
		},
		{
			name: "short vector",
			mutate: func(c *Config) {
				c.Externals = []ExternalCurve{{Name: "rail", Kind: "segment", From: []float64{0, 0}, To: []float64{1, 0, 0}}}
			},
			wantErr: "From",
		},
		{
			name: "duplicate external",
			mutate: func(c *Config) {
				ring := ExternalCurve{Name: "ring", Kind: "circle", Center: []float64{0, 0, 0}, Radius: 1}
				c.Externals = []ExternalCurve{ring, ring}
			},
			wantErr: "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sketcher.yaml", `
plane: XZ
solver:
  kind: minimize
  tolerance: 1e-8
variables:
  width: 40
store:
  path: sketches.db
server:
  address: ":9000"
  solve_timeout: 5s
telemetry:
  logging:
    level: debug
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Plane != "XZ" {
		t.Errorf("Expected plane XZ, got %s", cfg.Plane)
	}
	if cfg.Solver.Kind != solver.KindMinimize || cfg.Solver.Tolerance != 1e-8 {
		t.Errorf("Expected minimize at 1e-8, got %+v", cfg.Solver)
	}
	if cfg.Solver.MaxIter != 1000 || cfg.Solver.Relax != 1 {
		t.Errorf("Expected unset solver fields to keep defaults, got %+v", cfg.Solver)
	}
	if cfg.Variables["width"] != 40 {
		t.Errorf("Expected width 40, got %v", cfg.Variables)
	}
	if cfg.Server.Address != ":9000" || cfg.Server.SolveTimeout != 5*time.Second {
		t.Errorf("Expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Server.BodyLimit != 4<<20 {
		t.Errorf("Expected default body limit, got %d", cfg.Server.BodyLimit)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("Expected debug console logging, got %+v", cfg.Telemetry.Logging)
	}
	if cfg.Dir() != dir {
		t.Errorf("Expected dir %s, got %s", dir, cfg.Dir())
	}
}

func TestLoad_YAMLSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "plane: XY\ncolour: red\n"},
		{"bad plane", "plane: AB\n"},
		{"negative tolerance", "solver:\n  tolerance: -1\n"},
		{"bad duration", "server:\n  read_timeout: soon\n"},
		{"bad external kind", "externals:\n  - name: x\n    kind: spline\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "sketcher.yaml", tt.content)
			if _, err := Load(context.Background(), path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sketcher.cue", `
plane: "YZ"
variables: {
	width:  40
	height: width / 2
}
solver: tolerance: <1e-6
solver: tolerance: 1e-9
policy: fail_on: "warning"
server: read_timeout: "10s"
`)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Plane != "YZ" {
		t.Errorf("Expected plane YZ, got %s", cfg.Plane)
	}
	if cfg.Variables["height"] != 20 {
		t.Errorf("Expected height 20, got %v", cfg.Variables)
	}
	if cfg.Solver.Tolerance != 1e-9 || cfg.Solver.Kind != solver.KindRoot {
		t.Errorf("Expected root solver at 1e-9, got %+v", cfg.Solver)
	}
	if cfg.Policy.FailOn != "warning" {
		t.Errorf("Expected fail_on warning, got %s", cfg.Policy.FailOn)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Expected read timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
}

func TestLoad_CUEConstraintViolation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sketcher.cue", `
solver: tolerance: <1e-6
solver: tolerance: 1e-3
`)
	_, err := Load(context.Background(), path)
	if err == nil {
		t.Fatal("Expected constraint violation")
	}
	if !strings.Contains(err.Error(), "tolerance") {
		t.Errorf("Expected error to name the field, got: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(context.Background(), filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := Load(context.Background(), writeFile(t, dir, "sketcher.toml", "")); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if _, err := Load(context.Background(), writeFile(t, dir, "broken.cue", "plane: ")); err == nil {
		t.Error("Expected error for broken CUE")
	}

	cfg, err := Load(context.Background(), "")
	if err != nil || cfg.Plane != "XY" {
		t.Errorf("Expected defaults for empty path, got %+v, %v", cfg, err)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	if got := Find(dir); got != "" {
		t.Errorf("Expected no config, got %s", got)
	}
	writeFile(t, dir, "sketcher.cue", "")
	writeFile(t, dir, "sketcher.yml", "")
	if got := Find(dir); got != filepath.Join(dir, "sketcher.yml") {
		t.Errorf("Expected sketcher.yml to win, got %s", got)
	}
}

func TestConfig_ResolveVariables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vars.star", `
height = width / 2
diagonal = math.sqrt(width * width + height * height)
label = "bracket"
_scratch = 1
`)
	path := writeFile(t, dir, "sketcher.yaml", "variables:\n  width: 30\nvariables_script: vars.star\n")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	vars, err := cfg.ResolveVariables(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if vars["width"] != 30 || vars["height"] != 15 {
		t.Errorf("Expected width 30 and height 15, got %v", vars)
	}
	if math.Abs(vars["diagonal"]-math.Hypot(30, 15)) > 1e-12 {
		t.Errorf("Expected diagonal %g, got %g", math.Hypot(30, 15), vars["diagonal"])
	}
	if _, ok := vars["label"]; ok {
		t.Error("Expected string global to be skipped")
	}
	if _, ok := vars["_scratch"]; ok {
		t.Error("Expected private global to be skipped")
	}
	if cfg.Variables["height"] != 0 {
		t.Error("Expected configured variables to stay unchanged")
	}
}

func TestConfig_Library(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Externals = []ExternalCurve{
		{Name: "rail", Kind: "segment", From: []float64{0, 0, 0}, To: []float64{10, 0, 0}},
		{Name: "ring", Kind: "circle", Center: []float64{0, 0, 0}, Radius: 5},
	}

	lib, release, err := cfg.Library(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer release(context.Background())

	rail, err := lib.Curve("rail")
	if err != nil {
		t.Fatalf("Expected rail curve, got: %v", err)
	}
	if d := rail.MinDistance(geom.V3(5, 3, 0)); math.Abs(d-3) > 1e-12 {
		t.Errorf("Expected distance 3 to rail, got %g", d)
	}
	ring, err := lib.Curve("ring")
	if err != nil {
		t.Fatalf("Expected ring curve, got: %v", err)
	}
	if d := ring.MinDistance(geom.V3(8, 0, 0)); math.Abs(d-3) > 1e-12 {
		t.Errorf("Expected distance 3 to ring, got %g", d)
	}

	cfg.Externals = []ExternalCurve{{Name: "blob", Kind: "wasm", Path: filepath.Join(t.TempDir(), "missing.wasm")}}
	if _, _, err := cfg.Library(context.Background()); err == nil {
		t.Error("Expected error for missing wasm module")
	}
}

func TestConfig_SketchPlane(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plane = "XZ"
	p, err := cfg.SketchPlane()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p.AxisV().Z != 1 {
		t.Errorf("Expected V axis along Z, got %v", p.AxisV())
	}
}
