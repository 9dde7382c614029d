package cli

import (
	"github.com/spf13/cobra"

	"github.com/fromlifetolines/lumina-ados/internal/app"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled KPI refresh service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), runOnce)
	},
}

var (
	serveAddr      string
	serveScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), app.ServeOptions{Addr: serveAddr, Scheduler: serveScheduler})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Refresh once, print the dashboard and exit")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to server.addr)")
	serveCmd.Flags().BoolVar(&serveScheduler, "with-scheduler", false, "Also run the refresh scheduler in-process")
}
