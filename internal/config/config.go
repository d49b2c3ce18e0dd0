package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"news_radar"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`

	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	CheckInterval time.Duration `env:"PIPELINE_CHECK_INTERVAL" envDefault:"300s"`
	BatchSize     int           `env:"PIPELINE_BATCH_SIZE" envDefault:"100"`
	LLMLimit      int           `env:"PIPELINE_LLM_LIMIT" envDefault:"50"`

	LLMDelay          time.Duration `env:"LLM_DELAY" envDefault:"1s"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"deepseek/deepseek-chat"`
	LLMAnalysisModel  string        `env:"LLM_ANALYSIS_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`
	OpenRouterAPIKey  string        `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string        `env:"OPENROUTER_BASE_URL"`

	EmbeddingBaseURL string `env:"EMBEDDING_BASE_URL" envDefault:"http://localhost:8081/v1"`
	EmbeddingAPIKey  string `env:"EMBEDDING_API_KEY" envDefault:"local"`
	EmbeddingModel   string `env:"EMBEDDING_MODEL" envDefault:"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"`
	EmbeddingDim     int    `env:"EMBEDDING_DIM" envDefault:"384"`
	EmbeddingRPS     int    `env:"EMBEDDING_RPS" envDefault:"5"`

	BotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	LegacyChatID int64  `env:"TELEGRAM_CHAT_ID"`

	HotNewsThreshold float32       `env:"HOT_NEWS_THRESHOLD" envDefault:"0.7"`
	MonitorInterval  time.Duration `env:"HOT_NEWS_CHECK_INTERVAL" envDefault:"60s"`

	RSSFeeds        []string      `env:"RSS_FEEDS" envSeparator:","`
	IngestInterval  time.Duration `env:"INGEST_INTERVAL" envDefault:"60s"`
	IngestUserAgent string        `env:"INGEST_USER_AGENT" envDefault:"news-radar/1.0"`

	ExportPath        string `env:"EXPORT_PATH" envDefault:"hot_clusters.json"`
	ExportTopK        int    `env:"EXPORT_TOP_K" envDefault:"20"`
	ExportWindowHours int    `env:"EXPORT_WINDOW_HOURS" envDefault:"48"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

// DefaultRSSFeeds is used when RSS_FEEDS is not set.
var DefaultRSSFeeds = []string{
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
	"https://www.ft.com/?format=rss",
	"https://finance.yahoo.com/news/rssindex",
	"https://financialpost.com/feed",
	"https://tass.ru/rss/v2.xml",
	"https://www.vedomosti.ru/rss/news",
	"https://www.kommersant.ru/RSS/news.xml",
	"https://smart-lab.ru/news/rss/",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if len(cfg.RSSFeeds) == 0 {
		cfg.RSSFeeds = DefaultRSSFeeds
	}

	return cfg, nil
}

// PostgresDSN assembles the connection string from the POSTGRES_* parts.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}
