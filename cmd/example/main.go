// Command example demonstrates wiring an aicostmanager.Client from
// environment configuration, tracking one usage record, and shutting down
// cleanly on an interrupt.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aicostmanager/aicostmanager-go/aicostmanager"
	"github.com/aicostmanager/aicostmanager-go/internal/infra/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	client, err := aicostmanager.New(cfg, aicostmanager.WithDeliveryStrategy(aicostmanager.StrategyImmediate))
	if err != nil {
		return fmt.Errorf("construct client: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainPeriod)
		defer cancel()
		if err := client.Close(shutdownCtx); err != nil {
			logger.Error("client shutdown failed", slog.Any("err", err))
		}
	}()

	if err := client.Refresh(ctx); err != nil {
		logger.Warn("initial triggered-limits refresh failed; proceeding fail-open", slog.Any("err", err))
	}

	responseID, err := client.Tracker.Track(ctx, "openai::chat", "openai::gpt-4o", map[string]any{
		"input_tokens":  1200,
		"output_tokens": 340,
	}, aicostmanager.TrackOptions{})
	if err != nil {
		logger.Error("track failed", slog.Any("err", err))
		return err
	}

	logger.Info("tracked usage", slog.String("response_id", responseID))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-time.After(time.Second):
	}

	return nil
}
