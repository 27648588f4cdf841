package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/server"
)

func newServeCommand() *cobra.Command {
	var (
		addr    string
		noStore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sketch service",
		Long: `Serve exposes solving, validation, linting and the document revision
history as a JSON HTTP API. Prometheus metrics are served on /metrics.`,
		Example: `  # Listen on the configured address
  sketcher serve

  # Stateless solving on another port
  sketcher serve --addr :9090 --no-store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			rt, err := setupWith(ctx, cfg, !noStore)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			log.Info().
				Str("address", cfg.Server.Address).
				Bool("store", !noStore).
				Msg("Starting sketch service")

			return server.New(rt.engine, cfg.Server).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "serve without a revision store")
	return cmd
}
