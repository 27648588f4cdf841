package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/config"
	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/stores"
)

const defaultConfigTemplate = `# sketcher configuration

# Sketch plane: XY, XZ or YZ
plane: %s

solver:
  kind: %s
  tolerance: %g
  relax: %g
  max_iter: %d

# Named values usable in linked distances and angles
variables: {}

store:
  path: %s

policy:
  paths: [%s]
  fail_on: error

telemetry:
  logging:
    level: info
    format: console
  metrics:
    enabled: true
    namespace: sketcher

server:
  address: "%s"
  solve_timeout: 30s
`

const examplePolicy = `# Flags distance dimensions that are not positive.
# severity: warning
package sketcher.policies.positive_distance

deny contains msg if {
	some e in input.sketch.entities
	e.parameters.distance <= 0
	msg := {"message": sprintf("entity %d has a non-positive distance", [e.id]), "entity": e.id}
}
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Initialize a sketcher workspace",
		Long: `Initialize a workspace with a sketcher.yaml, a policies directory and an
empty revision store.`,
		Example: `  # Initialize the current directory
  sketcher init

  # Initialize another directory, replacing its config
  sketcher init --force ./bracket`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			out := cmd.OutOrStdout()

			policyDir := filepath.Join(dir, "policies")
			if err := os.MkdirAll(policyDir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", policyDir, err)
			}

			cfgPath := filepath.Join(dir, config.DefaultFileNames[0])
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return engine.NewError(engine.ErrCodeConflict, cfgPath+" already exists; use --force to replace it", nil)
			}

			def := config.DefaultConfig()
			content := fmt.Sprintf(defaultConfigTemplate,
				def.Plane,
				def.Solver.Kind, def.Solver.Tolerance, def.Solver.Relax, def.Solver.MaxIter,
				def.Store.Path,
				"policies",
				def.Server.Address)
			if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Fprintf(out, "Created config file: %s\n", cfgPath)

			examplePath := filepath.Join(policyDir, "positive_distance.rego")
			if _, err := os.Stat(examplePath); os.IsNotExist(err) {
				if err := os.WriteFile(examplePath, []byte(examplePolicy), 0644); err != nil {
					return fmt.Errorf("failed to write example policy: %w", err)
				}
				fmt.Fprintf(out, "Created example policy: %s\n", examplePath)
			}

			cfg, err := config.Load(cmd.Context(), cfgPath)
			if err != nil {
				return fmt.Errorf("generated config is invalid: %w", err)
			}

			storeCfg := cfg.Store
			storeCfg.Path = cfg.ResolvePath(storeCfg.Path)
			st, err := stores.Open(cmd.Context(), storeCfg)
			if err != nil {
				return engine.NewError(engine.ErrCodeUnavailable, "failed to initialize revision store", err)
			}
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close store")
			}
			fmt.Fprintf(out, "Initialized revision store: %s\n", storeCfg.Path)

			fmt.Fprintf(out, "\nNext steps:\n")
			fmt.Fprintf(out, "  sketcher history new bracket\n")
			fmt.Fprintf(out, "  sketcher history commit <document> bracket.sk -m \"first draft\"\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing config file")
	return cmd
}
