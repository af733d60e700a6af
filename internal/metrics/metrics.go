// Package metrics exposes Prometheus collectors for the ranking service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rfqrank"

var (
	// AICalls counts model calls by outcome: ok, error, busy.
	AICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_calls_total",
		Help:      "Generative model calls by outcome.",
	}, []string{"outcome"})

	// AIRetries counts retried model calls.
	AIRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_retries_total",
		Help:      "Model calls retried after a transient failure.",
	})

	// ConversationTurns counts processed turns by the phase they ended in.
	ConversationTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_turns_total",
		Help:      "Conversation turns processed, by resulting phase.",
	}, []string{"phase"})

	// ConversationRecoveries counts conversations rebuilt after the live state was lost, by source.
	ConversationRecoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_recoveries_total",
		Help:      "Conversations recovered from persisted state or transcript.",
	}, []string{"source"})

	// ScoringRuns counts scoring runs by whether weights were active.
	ScoringRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scoring_runs_total",
		Help:      "Quote scoring runs.",
	}, []string{"scored"})

	// ScoringDuration observes how long a scoring run takes.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scoring_duration_seconds",
		Help:      "Time spent scoring a quote set.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	// QuotesIngested counts quotes stored, by source.
	QuotesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotes_ingested_total",
		Help:      "Quotes stored, by source.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(
		AICalls,
		AIRetries,
		ConversationTurns,
		ConversationRecoveries,
		ScoringRuns,
		ScoringDuration,
		QuotesIngested,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
