package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/stores"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

// Config is the configuration of the sketcher tools, read from
// sketcher.yaml or sketcher.cue.
type Config struct {
	// Plane names the sketch plane of new sketches (XY, XZ, YZ).
	Plane string `yaml:"plane" json:"plane" validate:"oneof=XY XZ YZ"`

	// Solver holds the default solver settings. Command line flags and
	// request bodies override them per solve.
	Solver solver.Settings `yaml:"solver" json:"solver"`

	// Variables are visible to linked distance and angle expressions.
	Variables map[string]float64 `yaml:"variables" json:"variables,omitempty"`

	// VariablesScript is a Starlark file whose numeric globals are added to
	// Variables. Relative paths resolve against the config file.
	VariablesScript string `yaml:"variables_script" json:"variables_script,omitempty"`

	// Externals are the curves ExternalReference entities can name.
	Externals []ExternalCurve `yaml:"externals" json:"externals,omitempty" validate:"dive"`

	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`
	Store     stores.Config    `yaml:"store" json:"store"`
	Policy    PolicyConfig     `yaml:"policy" json:"policy"`
	Server    ServerConfig     `yaml:"server" json:"server"`

	dir string
}

// ExternalCurve declares a named curve for the external geometry library.
type ExternalCurve struct {
	// Name is the name scripts use in ExternalReference(...).
	Name string `yaml:"name" json:"name" validate:"required"`

	// Kind is the curve type (segment, circle, wasm).
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=segment circle wasm"`

	// From and To are the segment end points.
	From []float64 `yaml:"from" json:"from,omitempty" validate:"omitempty,len=3"`
	To   []float64 `yaml:"to" json:"to,omitempty" validate:"omitempty,len=3"`

	// Center, Normal and Radius describe a circle.
	Center []float64 `yaml:"center" json:"center,omitempty" validate:"omitempty,len=3"`
	Normal []float64 `yaml:"normal" json:"normal,omitempty" validate:"omitempty,len=3"`
	Radius float64   `yaml:"radius" json:"radius,omitempty" validate:"gte=0"`

	// Path is the WebAssembly module of a wasm curve.
	Path string `yaml:"path" json:"path,omitempty"`

	// MemoryLimitPages caps guest memory of a wasm curve.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages,omitempty"`
}

func (x ExternalCurve) check() error {
	switch x.Kind {
	case "segment":
		if x.From == nil || x.To == nil {
			return errors.New("segment needs from and to")
		}
	case "circle":
		if x.Center == nil || x.Radius <= 0 {
			return errors.New("circle needs a center and a positive radius")
		}
	case "wasm":
		if x.Path == "" {
			return errors.New("wasm curve needs a module path")
		}
	}
	return nil
}

// PolicyConfig configures design-rule linting.
type PolicyConfig struct {
	// Paths lists .rego/.json rule files or directories.
	Paths []string `yaml:"paths" json:"paths,omitempty"`

	// Watch reloads the rules when files under Paths change.
	Watch bool `yaml:"watch" json:"watch"`

	// Disabled lists rules that are not evaluated.
	Disabled []string `yaml:"disabled" json:"disabled,omitempty"`

	// FailOn is the lowest severity that fails a lint run.
	FailOn string `yaml:"fail_on" json:"fail_on" validate:"oneof=info warning error"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Address         string        `yaml:"address" json:"address" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// BodyLimit is the maximum request body size in bytes.
	BodyLimit int `yaml:"body_limit" json:"body_limit" validate:"gt=0"`

	// SolveTimeout bounds a single solve request.
	SolveTimeout time.Duration `yaml:"solve_timeout" json:"solve_timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Plane:     "XY",
		Solver:    solver.DefaultSettings(),
		Variables: make(map[string]float64),
		Telemetry: *telemetry.DefaultConfig(),
		Store: stores.Config{
			Path:         "sketcher.db",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
		Policy: PolicyConfig{
			FailOn: "error",
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			BodyLimit:       4 << 20,
			SolveTimeout:    30 * time.Second,
		},
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Externals))
	for _, ext := range c.Externals {
		if seen[ext.Name] {
			return fmt.Errorf("invalid configuration: duplicate external curve %q", ext.Name)
		}
		seen[ext.Name] = true
		if err := ext.check(); err != nil {
			return fmt.Errorf("invalid configuration: external curve %q: %w", ext.Name, err)
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}

// Dir returns the directory of the file the configuration was loaded from.
func (c *Config) Dir() string { return c.dir }

// ResolvePath makes a relative p relative to the configuration file.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// ValidationError is a configuration error with its source location.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects the errors of one configuration source.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}
