package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.registerBuiltInSchemas(); err != nil {
		panic(fmt.Sprintf("built-in schemas do not compile: %v", err))
	}
	return sr
}

// registerBuiltInSchemas registers #Config and #External from the
// built-in schema file.
func (sr *SchemaRegistry) registerBuiltInSchemas() error {
	file := sr.ctx.CompileString(builtinSchemas, cue.Filename("schemas.cue"))
	if err := file.Err(); err != nil {
		return err
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for name, def := range map[string]string{
		"config":   "#Config",
		"external": "#External",
	} {
		val := file.LookupPath(cue.ParsePath(def))
		if err := val.Err(); err != nil {
			return fmt.Errorf("%s: %w", def, err)
		}
		sr.schemas[name] = val
	}
	return nil
}

// RegisterSchema compiles a CUE schema and registers it under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return sr.validateValue(schema, dataVal)
}

// validateValue unifies val with schema and checks that the result is
// concrete.
func (sr *SchemaRegistry) validateValue(schema, val cue.Value) error {
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinSchemas = `
#Vec: [number, number, number]

#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$" | int

#External: {
	name: =~"^[A-Za-z_][A-Za-z0-9_.-]*$"
	kind: "segment" | "circle" | "wasm"
	from?:   #Vec
	to?:     #Vec
	center?: #Vec
	normal?: #Vec
	radius?: number & >0
	path?:   string
	memory_limit_pages?: int & >0 & <=65536
}

#Config: {
	plane?: "XY" | "XZ" | "YZ"
	solver?: {
		kind?:      "root" | "minimize"
		tolerance?: number & >0
		relax?:     number & >0 & <=1
		max_iter?:  int & >0
	}
	variables?: {[string]: number}
	variables_script?: string
	externals?: [...#External]
	telemetry?: {
		service_name?:    string
		service_version?: string
		environment?:     string
		logging?: {
			level?:  "trace" | "debug" | "info" | "warn" | "error" | "fatal"
			format?: "console" | "json"
			...
		}
		tracing?: {
			exporter?:       "otlp" | "stdout" | "none"
			sampling_rate?:  number & >=0 & <=1
			export_timeout?: #Duration
			...
		}
		metrics?: {...}
		events?: {...}
	}
	store?: {
		path?:              string & !=""
		max_open_conns?:    int & >=0
		max_idle_conns?:    int & >=0
		conn_max_lifetime?: #Duration
	}
	policy?: {
		paths?:    [...string]
		watch?:    bool
		disabled?: [...string]
		fail_on?:  "info" | "warning" | "error"
	}
	server?: {
		address?:          string & !=""
		read_timeout?:     #Duration
		write_timeout?:    #Duration
		idle_timeout?:     #Duration
		shutdown_timeout?: #Duration
		solve_timeout?:    #Duration
		body_limit?:       int & >0
	}
}
`
