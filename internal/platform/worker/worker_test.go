package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var iterations int

	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name:         "test",
			PollInterval: time.Millisecond,
			RunOnStart:   true,
			Process: func(context.Context) error {
				iterations++
				if iterations >= 3 {
					cancel()
				}

				return nil
			},
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.GreaterOrEqual(t, iterations, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopFatalError(t *testing.T) {
	fatal := errors.New("db is gone")

	err := Loop(context.Background(), Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		RunOnStart:   true,
		Process: func(context.Context) error {
			return fatal
		},
		OnError: func(error) bool { return false },
	})

	require.ErrorIs(t, err, fatal)
}

func TestLoopContinuesOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var iterations int

	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name:         "test",
			PollInterval: time.Millisecond,
			RunOnStart:   true,
			Process: func(context.Context) error {
				iterations++
				if iterations >= 3 {
					cancel()
				}

				return errors.New("transient")
			},
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.GreaterOrEqual(t, iterations, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopLifecycleHooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var started, stopped bool

	err := Loop(ctx, Config{
		Name:         "test",
		PollInterval: time.Millisecond,
		OnStart:      func(context.Context) { started = true },
		OnStop:       func() { stopped = true },
	})

	require.Error(t, err)
	require.True(t, started)
	require.True(t, stopped)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Wait(ctx, time.Minute), context.Canceled)
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecoverPanic(t *testing.T) {
	logger := zerolog.Nop()

	require.NotPanics(t, func() {
		defer RecoverPanic(&logger, "test op")
		panic("boom")
	})
}
