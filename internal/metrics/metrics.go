// Package metrics exposes prometheus instrumentation for the
// similarity search and reconciliation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimilaritySearches counts similarity searches by the path that
	// produced the result: "indexed" (managed vector index), "scan"
	// (exhaustive cosine fallback), or "empty" (store had no vectors).
	SimilaritySearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fridgesense",
		Name:      "similarity_searches_total",
		Help:      "Similarity searches by resolution path.",
	}, []string{"path"})

	// AIFallbacks counts generative AI identification calls, taken only
	// when no stored embedding cleared the intake threshold.
	AIFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fridgesense",
		Name:      "ai_fallback_identifications_total",
		Help:      "AI fallback identification calls.",
	})

	// ReconcileOutcomes counts reconciliation decisions by outcome:
	// added, incremented, staged, decremented, deleted, rejected, error.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fridgesense",
		Name:      "reconcile_outcomes_total",
		Help:      "Reconciliation decisions by outcome.",
	}, []string{"outcome"})
)
