package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/sketcher/pkg/config"
	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/stores"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

// runtime holds what a command needs to talk to the engine.
type runtime struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	engine *engine.Engine
	store  stores.Store
}

// loadConfig reads --config, or the default config file of the working
// directory when the flag is empty.
func loadConfig(ctx context.Context) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Find(".")
	}
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return nil, engine.NewError(engine.ErrCodeInvalidRequest, "failed to load config", err)
	}
	if path != "" {
		log.Debug().Str("path", path).Msg("Config loaded")
	}
	if profile != "" {
		tc, err := telemetry.ProfileConfig(profile)
		if err != nil {
			return nil, engine.NewError(engine.ErrCodeInvalidRequest, err.Error(), err)
		}
		cfg.Telemetry = *tc
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// setup builds the engine. With withStore the revision store is opened
// too.
func setup(ctx context.Context, withStore bool) (*runtime, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return setupWith(ctx, cfg, withStore)
}

func setupWith(ctx context.Context, cfg *config.Config, withStore bool) (*runtime, error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	rt := &runtime{cfg: cfg, tel: tel}

	var opts []engine.Option
	if withStore {
		storeCfg := cfg.Store
		if storeCfg.Path != ":memory:" {
			storeCfg.Path = cfg.ResolvePath(storeCfg.Path)
		}
		st, err := stores.Open(ctx, storeCfg)
		if err != nil {
			rt.close(ctx)
			return nil, engine.NewError(engine.ErrCodeUnavailable, "failed to open revision store", err)
		}
		rt.store = st
		opts = append(opts, engine.WithStore(st))
	}

	eng, err := engine.New(ctx, cfg, tel, opts...)
	if err != nil {
		rt.close(ctx)
		return nil, engine.NewError(engine.ErrCodeInvalidRequest, "failed to initialize engine", err)
	}
	rt.engine = eng
	return rt, nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.engine != nil {
		if err := rt.engine.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close engine")
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if err := rt.tel.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func readScript(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", engine.NewError(engine.ErrCodeInvalidRequest, "failed to read script", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPoints writes the plane coordinates of every point-like entity.
func printPoints(w io.Writer, sum *sketch.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tU\tV")
	for _, e := range sum.Entities {
		if len(e.Coords) < 2 {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%.6g\t%.6g\n", e.ID, e.Type, e.Coords[0], e.Coords[1])
	}
	return tw.Flush()
}

// printSummary writes entity, DoF and constraint counts.
func printSummary(w io.Writer, source string, sum *sketch.Summary) {
	fmt.Fprintf(w, "%s: %d entities, %d DoFs, %d constraint equations, residual %.3g\n",
		source, len(sum.Entities), sum.NDoF, sum.NConstraints, sum.Residual)
}

// errLintFailed is returned when violations reach the fail_on severity.
var errLintFailed = errors.New("design rules failed")
