package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/storage"
)

// Store is the persistence surface the processor needs.
type Store interface {
	MaxNormalizedOriginalID(ctx context.Context) (int, error)
	NextUnnormalized(ctx context.Context, maxOriginalID, limit int) ([]storage.RawArticle, error)
	InsertNormalized(ctx context.Context, a storage.NormalizedArticle) (int, error)
	InsertBatchLog(ctx context.Context, b storage.BatchLog) error
}

// Processor runs normalization batches. Each batch resumes from the
// largest raw article id already normalized, so dropped articles still
// advance the mark.
type Processor struct {
	store      Store
	normalizer *Normalizer
	batchSize  int
	log        *zerolog.Logger
}

func NewProcessor(store Store, batchSize int, log *zerolog.Logger) *Processor {
	return &Processor{
		store:      store,
		normalizer: New(),
		batchSize:  batchSize,
		log:        log,
	}
}

// Run normalizes one batch of raw articles and records the batch log.
// Per-article failures are counted, not fatal.
func (p *Processor) Run(ctx context.Context) (storage.BatchLog, error) {
	start := time.Now()

	maxID, err := p.store.MaxNormalizedOriginalID(ctx)
	if err != nil {
		return storage.BatchLog{}, fmt.Errorf("read high-water mark: %w", err)
	}

	raw, err := p.store.NextUnnormalized(ctx, maxID, p.batchSize)
	if err != nil {
		return storage.BatchLog{}, fmt.Errorf("load unnormalized: %w", err)
	}

	stats := storage.BatchLog{
		BatchID: uuid.NewString(),
		Total:   len(raw),
	}

	for _, article := range raw {
		normalized, err := p.normalizer.Normalize(article)
		if err != nil {
			stats.Errors++
			p.log.Warn().Err(err).Int("article_id", article.ID).Msg("normalize article")

			continue
		}

		if normalized == nil {
			stats.Filtered++

			continue
		}

		if _, err := p.store.InsertNormalized(ctx, *normalized); err != nil {
			stats.Errors++
			p.log.Warn().Err(err).Int("article_id", article.ID).Msg("store normalized article")

			continue
		}

		stats.Processed++
	}

	stats.Elapsed = time.Since(start)

	if stats.Total > 0 {
		if err := p.store.InsertBatchLog(ctx, stats); err != nil {
			p.log.Warn().Err(err).Str("batch_id", stats.BatchID).Msg("store batch log")
		}

		p.log.Info().
			Str("batch_id", stats.BatchID).
			Int("total", stats.Total).
			Int("processed", stats.Processed).
			Int("filtered", stats.Filtered).
			Int("errors", stats.Errors).
			Dur("elapsed", stats.Elapsed).
			Msg("normalization batch done")
	}

	return stats, nil
}
