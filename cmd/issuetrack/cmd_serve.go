package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/server"
)

func (c *cli) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve known findings over HTTP",
		Long: `Start an HTTP API over the known findings store.

  GET  /health
  GET  /api/findings?scope=&file=&category=&rule=&limit=
  GET  /api/findings/search?q=
  GET  /api/findings/{id}
  GET  /api/stats
  POST /api/track          body: JSON or YAML report

scope defaults to the configured scope; scope=* reads every scope.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			return server.NewServer(b.store, b.tracker, c.cfg.Scope, addr).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7331", "listen address")
	return cmd
}
