package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_articles_ingested_total",
		Help: "The total number of raw articles ingested",
	}, []string{"feed"})

	ArticlesNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_articles_normalized_total",
		Help: "The total number of articles through normalization by outcome",
	}, []string{"outcome"})

	DocumentsClustered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_documents_clustered_total",
		Help: "The total number of documents assigned to clusters by decision",
	}, []string{"decision"})

	ClustersEnriched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_clusters_enriched_total",
		Help: "The total number of clusters through LLM enrichment by outcome",
	}, []string{"outcome"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radar_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	VectorIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_vector_index_size",
		Help: "Number of vectors in the in-memory index",
	})

	PipelineCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_pipeline_cycle_duration_seconds",
		Help:    "Duration of one full pipeline cycle",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	HotAlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_hot_alerts_sent_total",
		Help: "The total number of hot-news alert deliveries by status",
	}, []string{"status"})

	BotCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_bot_commands_total",
		Help: "The total number of bot commands handled",
	}, []string{"command"})

	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_active_subscribers",
		Help: "Current number of active alert subscribers",
	})
)
