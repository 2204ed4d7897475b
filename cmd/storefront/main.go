package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veya/storefront/pkg/storefront"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config yaml (optional, env vars override)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "grace period for in-flight requests")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := storefront.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	app, err := storefront.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init storefront: %v\n", err)
		return 1
	}
	log := app.Logger()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Str("route_prefix", cfg.Server.RoutePrefix).Msg("server.listening")
		if err := app.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("server.shutting_down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server.failed")
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server.shutdown_failed")
		exitCode = 1
	}
	if err := app.Close(); err != nil {
		log.Error().Err(err).Msg("server.cleanup_failed")
		exitCode = 1
	}
	log.Info().Msg("server.stopped")
	return exitCode
}
