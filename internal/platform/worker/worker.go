// Package worker provides the poll-loop skeleton shared by the
// pipeline, the ingester and the hot-news monitor: context-aware
// sleeping, error policy, and panic recovery.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const logFieldWorker = "worker"

// ProcessFunc does one unit of work. It should return quickly when no
// work is available.
type ProcessFunc func(ctx context.Context) error

// Config configures a worker loop.
type Config struct {
	// Name identifies the worker in logs.
	Name string

	// PollInterval is the sleep between iterations.
	PollInterval time.Duration

	// Process is called every iteration.
	Process ProcessFunc

	// RunOnStart runs Process once before the first sleep.
	RunOnStart bool

	// OnStart runs once before the first iteration.
	OnStart func(ctx context.Context)

	// OnStop runs once when the loop exits.
	OnStop func()

	// OnError decides whether a Process error is fatal. Return false
	// to stop the loop with that error. Nil means log and continue.
	OnError func(err error) bool

	Logger *zerolog.Logger
}

// Loop runs the worker until the context is canceled or OnError
// declares an error fatal. The current iteration always finishes
// before the loop observes cancellation.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Dur("poll_interval", cfg.PollInterval).Msg("worker started")

	if cfg.OnStart != nil {
		cfg.OnStart(ctx)
	}

	defer func() {
		if cfg.OnStop != nil {
			cfg.OnStop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker stopped")
	}()

	if cfg.RunOnStart {
		if err := step(ctx, cfg, logger); err != nil {
			return err
		}
	}

	for {
		if err := Wait(ctx, cfg.PollInterval); err != nil {
			return fmt.Errorf("worker %s: %w", cfg.Name, err)
		}

		if err := step(ctx, cfg, logger); err != nil {
			return err
		}
	}
}

func step(ctx context.Context, cfg Config, logger *zerolog.Logger) error {
	if cfg.Process == nil {
		return nil
	}

	if err := cfg.Process(ctx); err != nil {
		if cfg.OnError != nil && !cfg.OnError(err) {
			return err
		}

		logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
	}

	return nil
}

// Wait blocks for d or until the context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RunWithTimeout runs fn under a deadline derived from the parent
// context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic logs and swallows a panic. Use in goroutines whose
// death would silently disable a background task:
// defer worker.RecoverPanic(logger, "hot news monitor").
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().Interface("panic", r).Str("operation", operation).Msg("recovered from panic")
	}
}
