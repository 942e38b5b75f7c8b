package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkalwtb/magicnorthseaweed/internal/api"
	"github.com/mkalwtb/magicnorthseaweed/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the forecast API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health               - Health check
  GET  /metrics              - Prometheus metrics
  GET  /api/forecast         - Rated forecast for every spot
  GET  /api/forecast/{spot}  - Rated forecast for one spot
  GET  /api/overview         - Per-day condensed overview
  POST /api/refresh          - Force a cache refresh
  GET  /api/cache/status     - Cache freshness
  GET  /api/usage            - Upstream credential usage

Example:
  go run ./cmd/surfcast api
  go run ./cmd/surfcast api --port 8089`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	app, cleanup, err := initApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if apiPort != "" {
		app.cfg.Port = apiPort
	}

	forecastHandler := handlers.NewForecastHandler(app.cache, app.registry, app.log)
	systemHandler := handlers.NewSystemHandler(app.cache, app.keyring, app.log)

	router := api.NewRouter(forecastHandler, systemHandler, gatherer(app), app.log)
	server := api.New(app.cfg, app.log, router)

	// Run server in a goroutine so the signal handler can stop it.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		app.log.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return nil
}
