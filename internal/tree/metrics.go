package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mycelica/notetree/tree")

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetree_mutations_total",
		Help: "Tree mutations by operation and result",
	}, []string{"op", "result"})

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notetree_mutation_duration_seconds",
		Help:    "Tree mutation latency including the transaction",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"op"})

	rebalancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notetree_rebalances_total",
		Help: "Sibling sets renumbered because a gap fell under MinGap",
	})

	subtreeRewriteRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notetree_subtree_rewrite_rows",
		Help:    "Descendant rows rewritten per reparent",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	})
)
