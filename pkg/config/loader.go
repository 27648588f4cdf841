package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/sketcher/pkg/geom"
)

// DefaultFileNames are searched, in order, by Find.
var DefaultFileNames = []string{"sketcher.yaml", "sketcher.yml", "sketcher.cue"}

// Find returns the first default configuration file in dir, or "" when
// there is none.
func Find(dir string) string {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads a YAML, JSON or CUE configuration file. Unset fields keep the
// values of DefaultConfig. An empty path returns the defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		out, err := NewCUEParser().Parse(ctx, []string{path})
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		data = out

	case ".yaml", ".yml", ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc != nil {
			if err := NewSchemaRegistry().ValidateAgainstSchema(ctx, "config", doc); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		data = raw

	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ResolveVariables returns Variables merged with the globals of
// VariablesScript. Script values win.
func (c *Config) ResolveVariables(ctx context.Context) (map[string]float64, error) {
	vars := make(map[string]float64, len(c.Variables))
	for k, v := range c.Variables {
		vars[k] = v
	}
	if c.VariablesScript == "" {
		return vars, nil
	}

	path := c.ResolvePath(c.VariablesScript)
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables script: %w", err)
	}
	res, err := NewStarlarkEvaluator(0).Evaluate(ctx, filepath.Base(path), string(script), vars)
	if err != nil {
		return nil, err
	}
	for k, v := range res.Variables {
		vars[k] = v
	}
	return vars, nil
}

// Library builds the external geometry library. The returned function
// releases WebAssembly runtimes and must be called when the library is no
// longer used.
func (c *Config) Library(ctx context.Context) (*geom.MapLibrary, func(context.Context) error, error) {
	lib := geom.NewMapLibrary()
	var wasm []*geom.WasmCurve
	release := func(ctx context.Context) error {
		var first error
		for _, w := range wasm {
			if err := w.Close(ctx); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, ext := range c.Externals {
		if err := ext.check(); err != nil {
			_ = release(ctx)
			return nil, nil, fmt.Errorf("external curve %s: %w", ext.Name, err)
		}
		switch ext.Kind {
		case "segment":
			lib.Register(ext.Name, geom.Segment{A: vec(ext.From), B: vec(ext.To)})
		case "circle":
			n := geom.V3(0, 0, 1)
			if ext.Normal != nil {
				n = vec(ext.Normal)
			}
			lib.Register(ext.Name, geom.Circle{Center: vec(ext.Center), N: n, R: ext.Radius})
		case "wasm":
			curve, err := geom.LoadWasmCurve(ctx, ext.Name, c.ResolvePath(ext.Path), geom.WasmConfig{
				MemoryLimitPages: ext.MemoryLimitPages,
			})
			if err != nil {
				_ = release(ctx)
				return nil, nil, err
			}
			wasm = append(wasm, curve)
			lib.Register(ext.Name, curve)
		default:
			_ = release(ctx)
			return nil, nil, fmt.Errorf("external curve %s: unknown kind %q", ext.Name, ext.Kind)
		}
	}
	return lib, release, nil
}

// SketchPlane returns the datum plane named by Plane.
func (c *Config) SketchPlane() (*geom.Datum, error) {
	return geom.PlaneByName(c.Plane)
}

func vec(v []float64) geom.Vec3 {
	return geom.V3(v[0], v[1], v[2])
}
