package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_agent_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency by routing destination",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	PipelineTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_pipeline_total",
			Help: "Pipeline invocations by terminal status",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_cache_misses_total",
			Help: "Response cache misses",
		},
	)

	RewriteAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_rewrite_attempts_total",
			Help: "Query rewrites performed after an insufficient grading verdict",
		},
	)

	DocumentsRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_agent_documents_retrieved",
			Help:    "Excerpts retrieved per pipeline run",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
	)

	SentimentScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_agent_sentiment_score",
			Help:    "Sentiment scores by subject",
			Buckets: []float64{-1, -0.5, -0.25, 0, 0.25, 0.5, 1},
		},
		[]string{"subject"},
	)

	LLMTokensUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_llm_tokens_total",
			Help: "Total tokens consumed across LLM calls",
		},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_documents_processed_total",
			Help: "Knowledge-base documents ingested",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		PipelineDuration,
		PipelineTotal,
		CacheHits,
		CacheMisses,
		RewriteAttempts,
		DocumentsRetrieved,
		SentimentScore,
		LLMTokensUsed,
		DocumentsProcessed,
	)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
