package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "items_total",
			Help:      "Ingested items by source and outcome",
		},
		[]string{"source", "outcome"}, // created / deduped / skipped / failed
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "embedding_requests_total",
			Help:      "Embedding provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leadscout",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "embedding_chunks_total",
			Help:      "Chunks seen by the embedder by result",
		},
		[]string{"result"}, // embedded / skipped / failed
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"},
	)

	LeadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "leads_total",
			Help:      "Lead upserts by practice area and result",
		},
		[]string{"practice_area", "result"}, // created / updated / kept
	)

	ScoreConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leadscout",
			Name:      "score_confidence",
			Help:      "Confidence of matching candidates",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"practice_area"},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "llm_calls_total",
			Help:      "Generation calls by provider and status",
		},
		[]string{"provider", "operation", "status"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadscout",
			Name:      "runs_total",
			Help:      "Pipeline runs by status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ItemsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingChunksTotal,
			EmbeddingCacheTotal,
			LeadsTotal,
			ScoreConfidence,
			LLMCallsTotal,
			RunsTotal,
			HTTPRequestDuration,
			HTTPRequestsTotal,
		)
	})
}
