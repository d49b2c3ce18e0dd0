package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alphapulse/news-radar/internal/enrich"
	"github.com/alphapulse/news-radar/internal/storage"
)

type fakeNormalizer struct {
	batch storage.BatchLog
	err   error
	calls int
}

func (f *fakeNormalizer) Run(context.Context) (storage.BatchLog, error) {
	f.calls++

	return f.batch, f.err
}

type fakeClusterer struct {
	warmErr   error
	processed int
	err       error
	warmCalls int
	runCalls  int
}

func (f *fakeClusterer) WarmUp(context.Context) error {
	f.warmCalls++

	return f.warmErr
}

func (f *fakeClusterer) Run(context.Context) (int, error) {
	f.runCalls++

	return f.processed, f.err
}

type fakeEnricher struct {
	stats enrich.Stats
	err   error
	calls int
}

func (f *fakeEnricher) Run(context.Context) (enrich.Stats, error) {
	f.calls++

	return f.stats, f.err
}

func newPipeline(n *fakeNormalizer, c *fakeClusterer, e *fakeEnricher) *Pipeline {
	log := zerolog.Nop()

	return New(n, c, e, time.Hour, &log)
}

func TestCycleFullRun(t *testing.T) {
	n := &fakeNormalizer{batch: storage.BatchLog{Processed: 5, Filtered: 1}}
	c := &fakeClusterer{processed: 5}
	e := &fakeEnricher{stats: enrich.Stats{Processed: 2}}

	p := newPipeline(n, c, e)
	require.NoError(t, p.cycle(context.Background()))

	require.Equal(t, 1, n.calls)
	require.Equal(t, 1, c.runCalls)
	require.Equal(t, 1, e.calls)
}

func TestCycleIdleSkipsDownstream(t *testing.T) {
	n := &fakeNormalizer{batch: storage.BatchLog{Filtered: 3}}
	c := &fakeClusterer{}
	e := &fakeEnricher{}

	p := newPipeline(n, c, e)
	require.NoError(t, p.cycle(context.Background()))

	require.Equal(t, 1, n.calls)
	require.Zero(t, c.runCalls)
	require.Zero(t, e.calls)
}

func TestCycleNoClustersSkipsEnrich(t *testing.T) {
	n := &fakeNormalizer{batch: storage.BatchLog{Processed: 2}}
	c := &fakeClusterer{processed: 0}
	e := &fakeEnricher{}

	p := newPipeline(n, c, e)
	require.NoError(t, p.cycle(context.Background()))

	require.Equal(t, 1, c.runCalls)
	require.Zero(t, e.calls)
}

func TestCycleStageError(t *testing.T) {
	boom := errors.New("db down")
	n := &fakeNormalizer{err: boom}

	p := newPipeline(n, &fakeClusterer{}, &fakeEnricher{})
	require.ErrorIs(t, p.cycle(context.Background()), boom)
}

func TestRunWarmsUpBeforeLooping(t *testing.T) {
	warmErr := errors.New("index load failed")
	c := &fakeClusterer{warmErr: warmErr}

	p := newPipeline(&fakeNormalizer{}, c, &fakeEnricher{})
	require.ErrorIs(t, p.Run(context.Background()), warmErr)
	require.Equal(t, 1, c.warmCalls)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	n := &fakeNormalizer{}
	p := newPipeline(n, &fakeClusterer{}, &fakeEnricher{})

	done := make(chan error, 1)

	go func() { done <- p.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}
