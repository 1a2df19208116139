package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcore_active_connections",
			Help: "Currently registered client connections",
		},
	)

	MessagesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_messages_ingested_total",
			Help: "Messages handled by the pipeline",
		},
		[]string{"kind", "status"},
	)

	BroadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_broadcast_deliveries_total",
			Help: "Per-member broadcast delivery outcomes",
		},
		[]string{"status"},
	)

	AIAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_ai_attempts_total",
			Help: "AI response attempts by path",
		},
		[]string{"path", "outcome"},
	)

	AIResponseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcore_ai_response_duration_seconds",
			Help:    "Successful AI response latency by path",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path"},
	)

	RetrievalQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_retrieval_queries_total",
			Help: "Retrieval queries issued",
		},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatcore_retrieval_results_count",
			Help:    "Matches returned per retrieval query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	EmbeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	EmbeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_documents_ingested_total",
			Help: "Documents processed by the retrieval subsystem",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatcore_chunks_indexed_total",
			Help: "Chunks embedded and upserted",
		},
	)
)

func Init() {
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(MessagesIngested)
	prometheus.MustRegister(BroadcastDeliveries)
	prometheus.MustRegister(AIAttempts)
	prometheus.MustRegister(AIResponseDuration)
	prometheus.MustRegister(RetrievalQueries)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIndexed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
