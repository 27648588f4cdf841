package geom

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmDistanceExport is the function a curve module must export:
// min_dist(x, y, z f64) f64.
const WasmDistanceExport = "min_dist"

// wasmReactorInit is run once after instantiation when the module exports
// it, as WASI reactors built by Go and TinyGo do.
const wasmReactorInit = "_initialize"

// WasmConfig configures the runtime backing a WasmCurve.
type WasmConfig struct {
	// MemoryLimitPages caps guest memory (64 KiB pages).
	MemoryLimitPages uint32
}

// WasmCurve is a Curve evaluated by a WebAssembly module.
type WasmCurve struct {
	name    string
	runtime wazero.Runtime
	module  api.Module
	minDist api.Function

	mu      sync.Mutex
	lastErr error
}

// LoadWasmCurve compiles the module at path.
func LoadWasmCurve(ctx context.Context, name, path string, cfg WasmConfig) (*WasmCurve, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curve module: %w", err)
	}
	return NewWasmCurve(ctx, name, wasm, cfg)
}

// NewWasmCurve instantiates a curve module from its binary.
func NewWasmCurve(ctx context.Context, name string, wasm []byte, cfg WasmConfig) (*WasmCurve, error) {
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 16
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile curve module %s: %w", name, err)
	}

	moduleConfig := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	if _, ok := compiled.ExportedFunctions()[wasmReactorInit]; ok {
		moduleConfig = moduleConfig.WithStartFunctions(wasmReactorInit)
	}
	module, err := runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate curve module %s: %w", name, err)
	}

	fn := module.ExportedFunction(WasmDistanceExport)
	if fn == nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("curve module %s does not export %s", name, WasmDistanceExport)
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 3 || len(def.ResultTypes()) != 1 {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("curve module %s: %s must have signature (f64, f64, f64) -> f64", name, WasmDistanceExport)
	}

	return &WasmCurve{
		name:    name,
		runtime: runtime,
		module:  module,
		minDist: fn,
	}, nil
}

// Name returns the curve name.
func (c *WasmCurve) Name() string { return c.name }

// Distance calls the module's distance function.
func (c *WasmCurve) Distance(ctx context.Context, p Vec3) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.minDist.Call(ctx, api.EncodeF64(p.X), api.EncodeF64(p.Y), api.EncodeF64(p.Z))
	if err != nil {
		c.lastErr = fmt.Errorf("curve %s: %w", c.name, err)
		return 0, c.lastErr
	}
	return api.DecodeF64(res[0]), nil
}

// MinDistance implements Curve. A failing call yields +Inf and is recorded
// in Err; use Distance to get the error.
func (c *WasmCurve) MinDistance(p Vec3) float64 {
	d, err := c.Distance(context.Background(), p)
	if err != nil {
		return math.Inf(1)
	}
	return d
}

// Err returns the last evaluation error, if any.
func (c *WasmCurve) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close releases the module and runtime.
func (c *WasmCurve) Close(ctx context.Context) error {
	if c.module != nil {
		if err := c.module.Close(ctx); err != nil {
			return fmt.Errorf("failed to close curve module: %w", err)
		}
	}
	if c.runtime != nil {
		if err := c.runtime.Close(ctx); err != nil {
			return fmt.Errorf("failed to close curve runtime: %w", err)
		}
	}
	return nil
}
