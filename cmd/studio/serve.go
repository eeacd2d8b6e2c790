package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the generation API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	logger := svc.logger

	app := handlers.NewApp(ctx, logger, svc.catalog, svc.client, svc.runner, svc.store, svc.gallery)
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMin: svc.cfg.RateLimitPerMin,
		AllowedOrigins:  svc.cfg.AllowedOrigins,
	})
	server := infra.NewHTTPServer(svc.cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backend", svc.client.BaseURL()).Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// ctx is cancelled by now, so in-flight generations unwind promptly.
	app.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
