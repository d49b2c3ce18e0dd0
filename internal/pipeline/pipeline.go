// Package pipeline drives the three processing stages in sequence:
// normalization, clustering, enrichment. Later stages are skipped when
// an earlier stage produced nothing, so an idle radar costs one cheap
// query per cycle.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/enrich"
	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/platform/worker"
	"github.com/alphapulse/news-radar/internal/storage"
)

type Normalizer interface {
	Run(ctx context.Context) (storage.BatchLog, error)
}

type Clusterer interface {
	WarmUp(ctx context.Context) error
	Run(ctx context.Context) (int, error)
}

type Enricher interface {
	Run(ctx context.Context) (enrich.Stats, error)
}

// Pipeline owns the stage sequence and its polling cadence.
type Pipeline struct {
	normalizer Normalizer
	clusterer  Clusterer
	enricher   Enricher
	interval   time.Duration
	log        *zerolog.Logger
}

func New(n Normalizer, c Clusterer, e Enricher, interval time.Duration, log *zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizer: n,
		clusterer:  c,
		enricher:   e,
		interval:   interval,
		log:        log,
	}
}

// Run warms the vector index from durable state, then loops until the
// context is canceled. The current cycle always completes before
// shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.clusterer.WarmUp(ctx); err != nil {
		return fmt.Errorf("pipeline start: %w", err)
	}

	return worker.Loop(ctx, worker.Config{
		Name:         "pipeline",
		PollInterval: p.interval,
		RunOnStart:   true,
		Process:      p.cycle,
		Logger:       p.log,
	})
}

func (p *Pipeline) cycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.PipelineCycleDuration.Observe(time.Since(start).Seconds())
	}()

	batch, err := p.normalizer.Run(ctx)
	if err != nil {
		return fmt.Errorf("normalize stage: %w", err)
	}

	observability.ArticlesNormalized.WithLabelValues("processed").Add(float64(batch.Processed))
	observability.ArticlesNormalized.WithLabelValues("filtered").Add(float64(batch.Filtered))
	observability.ArticlesNormalized.WithLabelValues("error").Add(float64(batch.Errors))

	if batch.Processed == 0 {
		p.log.Debug().Msg("no new articles, cycle idle")

		return nil
	}

	clustered, err := p.clusterer.Run(ctx)
	if err != nil {
		return fmt.Errorf("cluster stage: %w", err)
	}

	if clustered == 0 {
		p.logCycle(batch, clustered, enrich.Stats{}, start)

		return nil
	}

	stats, err := p.enricher.Run(ctx)
	if err != nil {
		return fmt.Errorf("enrich stage: %w", err)
	}

	observability.ClustersEnriched.WithLabelValues("processed").Add(float64(stats.Processed))
	observability.ClustersEnriched.WithLabelValues("skipped").Add(float64(stats.Skipped))
	observability.ClustersEnriched.WithLabelValues("error").Add(float64(stats.Errors))

	p.logCycle(batch, clustered, stats, start)

	return nil
}

func (p *Pipeline) logCycle(batch storage.BatchLog, clustered int, stats enrich.Stats, start time.Time) {
	p.log.Info().
		Int("normalized", batch.Processed).
		Int("filtered", batch.Filtered).
		Int("clustered", clustered).
		Int("enriched", stats.Processed).
		Int("enrich_errors", stats.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline cycle done")
}
