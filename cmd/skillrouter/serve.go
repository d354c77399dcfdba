package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillrouter/pkg/httpapi"
	"github.com/jingkaihe/skillrouter/pkg/logger"
	"github.com/jingkaihe/skillrouter/pkg/presenter"
	"github.com/jingkaihe/skillrouter/pkg/telemetry"
	"github.com/jingkaihe/skillrouter/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolution pipeline over HTTP",
	Long: `Start a local HTTP server exposing the pipeline:

  POST /api/resolve       resolve a load plan for a query
  POST /api/commit        commit a delivered load plan
  GET  /api/explain       candidate diagnostics for a query
  GET  /api/skills        catalog listing with parse errors
  POST /api/reload        rebuild the catalog snapshot`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		tracing, _ := cmd.Flags().GetBool("tracing")

		shutdown, err := telemetry.InitTracer(ctx, telemetry.Config{
			Enabled:        tracing,
			ServiceName:    "skillrouter",
			ServiceVersion: version.Get().Version,
			SamplerType:    viper.GetString("tracing.sampler"),
			SamplerRatio:   viper.GetFloat64("tracing.ratio"),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to shut down tracer")
			}
		}()

		core, store, sessions, err := newRouter(ctx)
		if err != nil {
			return err
		}
		defer sessions.Close()

		server := httpapi.NewServer(core, store, httpapi.Config{
			Host:          host,
			Port:          port,
			DefaultBudget: viper.GetInt("planner.default_budget"),
		})
		presenter.Info(fmt.Sprintf("Serving on http://%s:%d", host, port))
		return server.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Int("port", 8090, "Port to bind to")
	serveCmd.Flags().Bool("tracing", false, "Enable OpenTelemetry tracing")
	viper.SetDefault("tracing.sampler", "always")
	viper.SetDefault("tracing.ratio", 1.0)
	rootCmd.AddCommand(serveCmd)
}
