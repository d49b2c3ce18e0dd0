package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alphapulse/news-radar/internal/bot"
	"github.com/alphapulse/news-radar/internal/cluster"
	"github.com/alphapulse/news-radar/internal/config"
	"github.com/alphapulse/news-radar/internal/embed"
	"github.com/alphapulse/news-radar/internal/enrich"
	"github.com/alphapulse/news-radar/internal/export"
	"github.com/alphapulse/news-radar/internal/ingest"
	"github.com/alphapulse/news-radar/internal/normalize"
	"github.com/alphapulse/news-radar/internal/observability"
	"github.com/alphapulse/news-radar/internal/pipeline"
	"github.com/alphapulse/news-radar/internal/storage"
)

func main() {
	mode := flag.String("mode", "", "Service mode (worker, bot, ingest, export)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := storage.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	db, err := storage.New(ctx, cfg.PostgresDSN(), poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Health server runs in every mode except the one-shot export.
	if *mode != "export" {
		health := observability.NewServer(db, cfg.HealthPort, &logger)

		go func() {
			if err := health.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("health server error")
			}
		}()
	}

	if err := runMode(ctx, cfg, db, &logger, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")

			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, cfg *config.Config, db *storage.DB, logger *zerolog.Logger, mode string) error {
	switch mode {
	case "worker":
		return runWorker(ctx, cfg, db, logger)
	case "bot":
		return runBot(ctx, cfg, db, logger)
	case "ingest":
		return runIngest(ctx, cfg, db, logger)
	case "export":
		return runExport(ctx, cfg, db, logger)
	default:
		log.Fatalf("Usage: %s --mode=[worker|bot|ingest|export]", os.Args[0])

		return nil
	}
}

// runWorker drives the normalize -> cluster -> enrich cycle.
func runWorker(ctx context.Context, cfg *config.Config, db *storage.DB, logger *zerolog.Logger) error {
	embedder := embed.New(embed.Config{
		BaseURL: cfg.EmbeddingBaseURL,
		APIKey:  cfg.EmbeddingAPIKey,
		Model:   cfg.EmbeddingModel,
		Dim:     cfg.EmbeddingDim,
		RPS:     cfg.EmbeddingRPS,
	})

	llm := enrich.NewClient(enrich.ClientConfig{
		Endpoint: cfg.OpenRouterBaseURL,
		APIKey:   cfg.OpenRouterAPIKey,
		Model:    cfg.LLMModel,
		Delay:    cfg.LLMDelay,
	}, logger)

	p := pipeline.New(
		normalize.NewProcessor(db, cfg.BatchSize, logger),
		cluster.New(db, embedder, logger),
		enrich.New(db, llm, cfg.LLMLimit, logger),
		cfg.CheckInterval,
		logger,
	)

	return p.Run(ctx)
}

// runBot serves Telegram queries and the hot-news monitor.
func runBot(ctx context.Context, cfg *config.Config, db *storage.DB, logger *zerolog.Logger) error {
	cards := enrich.NewClient(enrich.ClientConfig{
		Endpoint:  cfg.OpenRouterBaseURL,
		APIKey:    cfg.OpenRouterAPIKey,
		Model:     cfg.LLMModel,
		CardModel: cfg.LLMAnalysisModel,
		Delay:     cfg.LLMDelay,
	}, logger)

	b, err := bot.New(cfg.BotToken, db, cards, logger)
	if err != nil {
		return err
	}

	monitor := bot.NewMonitor(db, b.API(), cfg.HotNewsThreshold, cfg.MonitorInterval, cfg.LegacyChatID, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })

	return g.Wait()
}

// runIngest polls the configured RSS feeds.
func runIngest(ctx context.Context, cfg *config.Config, db *storage.DB, logger *zerolog.Logger) error {
	ing := ingest.New(db, cfg.RSSFeeds, cfg.IngestUserAgent, cfg.IngestInterval, logger)

	return ing.Loop(ctx)
}

// runExport writes the cluster snapshot once and exits.
func runExport(ctx context.Context, cfg *config.Config, db *storage.DB, logger *zerolog.Logger) error {
	exp := export.New(db, logger)

	return exp.WriteFile(ctx, cfg.ExportPath, cfg.ExportTopK, cfg.ExportWindowHours)
}
