package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"courseboard/internal/app"
	"courseboard/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return application.Stop(shutdownCtx)
	}
}
