package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphapulse/news-radar/internal/storage"
)

// Store is the persistence surface the enricher needs.
type Store interface {
	UnprocessedClusters(ctx context.Context, limit int) ([]storage.StoryCluster, error)
	HasAnalyzed(ctx context.Context, clusterID int) (bool, error)
	RepresentativeArticle(ctx context.Context, clusterID int) (*storage.NormalizedArticle, error)
	InsertAnalyzed(ctx context.Context, a storage.AnalyzedNews) (int, bool, error)
}

// Analyzer is the LLM surface used per cluster.
type Analyzer interface {
	AnalyzeNews(ctx context.Context, input AnalysisInput) (Analysis, error)
}

// Stats summarizes one enrichment batch.
type Stats struct {
	Processed int
	Skipped   int
	Errors    int
}

// Enricher attaches exactly one LLM-generated analysis row to each
// story cluster. The unique constraint on cluster_id is the
// cross-worker coordination primitive; losing an insert race counts as
// skipped, never as an error.
type Enricher struct {
	store    Store
	analyzer Analyzer
	limit    int
	log      *zerolog.Logger
}

func New(store Store, analyzer Analyzer, limit int, log *zerolog.Logger) *Enricher {
	return &Enricher{
		store:    store,
		analyzer: analyzer,
		limit:    limit,
		log:      log,
	}
}

// Run enriches one batch of unprocessed clusters, newest first. A
// failure on one cluster never stops the batch.
func (e *Enricher) Run(ctx context.Context) (Stats, error) {
	clusters, err := e.store.UnprocessedClusters(ctx, e.limit)
	if err != nil {
		return Stats{}, fmt.Errorf("load unprocessed clusters: %w", err)
	}

	var stats Stats

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		ok, err := e.processCluster(ctx, cluster)

		switch {
		case err != nil:
			stats.Errors++
			e.log.Warn().Err(err).Int("cluster_id", cluster.ID).Msg("enrich cluster")
		case ok:
			stats.Processed++
		default:
			stats.Skipped++
		}
	}

	if stats.Processed+stats.Skipped+stats.Errors > 0 {
		e.log.Info().
			Int("processed", stats.Processed).
			Int("skipped", stats.Skipped).
			Int("errors", stats.Errors).
			Msg("enrichment batch done")
	}

	return stats, nil
}

// processCluster returns (true, nil) when a row was inserted, (false,
// nil) when the cluster was skipped, and an error when the cluster
// should be retried next cycle.
func (e *Enricher) processCluster(ctx context.Context, cluster storage.StoryCluster) (bool, error) {
	// Re-check before paying for the LLM call; another worker may have
	// finished this cluster since the batch query.
	analyzed, err := e.store.HasAnalyzed(ctx, cluster.ID)
	if err != nil {
		return false, err
	}

	if analyzed {
		return false, nil
	}

	article, err := e.store.RepresentativeArticle(ctx, cluster.ID)
	if err != nil {
		return false, err
	}

	if article == nil {
		e.log.Warn().Int("cluster_id", cluster.ID).Msg("cluster has no members")

		return false, nil
	}

	content := article.Content
	if content == "" {
		content = article.Title
	}

	analysis, err := e.analyzer.AnalyzeNews(ctx, AnalysisInput{
		Headline:    article.Title,
		Content:     content,
		Source:      article.Source,
		URL:         article.Link,
		PublishedAt: article.PublishedAt,
		RuleHotness: cluster.Hotness,
	})
	if err != nil {
		// Includes parse failures: no row is written, the cluster stays
		// queued and is retried next cycle.
		return false, err
	}

	publishedAt := article.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	_, inserted, err := e.store.InsertAnalyzed(ctx, storage.AnalyzedNews{
		NormalizedID:  article.ID,
		ClusterID:     cluster.ID,
		Headline:      article.Title,
		Content:       article.Content,
		HeadlineEN:    fallbackEN(analysis.HeadlineEN, article.Title),
		ContentEN:     fallbackEN(analysis.ContentEN, article.Content),
		URLs:          cluster.URLs,
		PublishedTime: publishedAt,
		AIHotness:     analysis.Hotness,
		Tickers:       analysis.Tickers,
		Reasoning:     analysis.Reasoning,
	})
	if err != nil {
		return false, err
	}

	if !inserted {
		return false, nil
	}

	e.log.Debug().
		Int("cluster_id", cluster.ID).
		Float32("ai_hotness", analysis.Hotness).
		Strs("tickers", analysis.Tickers).
		Msg("cluster analyzed")

	return true, nil
}

// English fields fall back to the original text when the model leaves
// them blank.
func fallbackEN(english, original string) string {
	if english != "" {
		return english
	}

	return original
}
