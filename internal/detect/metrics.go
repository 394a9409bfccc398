package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CyclesFound counts cycles emitted by the detector, per venue and method
// (bf, tri); bf counts are taken after depth revalidation.
var CyclesFound = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "detect",
		Name:      "cycles_found_total",
		Help:      "Cycles emitted by the detector, before depth revalidation",
	},
	[]string{"venue", "method"},
)

// CyclesRejected counts cycles discarded during post-processing, tagged by
// reason; the only reason recorded is depth_revalidation (bf method).
var CyclesRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "detect",
		Name:      "cycles_rejected_total",
		Help:      "Cycles rejected during post-processing, by reason",
	},
	[]string{"venue", "method", "reason"},
)

// IterationDuration measures one full per-venue detection pass.
var IterationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "arbitrage",
		Subsystem: "detect",
		Name:      "iteration_duration_seconds",
		Help:      "Time to complete one detection iteration for a venue",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"venue"},
)

// PersistenceStreak tracks the max streak of the hottest cycle per
// venue, sampled each iteration, for dashboard visibility.
var PersistenceStreak = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "arbitrage",
		Subsystem: "detect",
		Name:      "persistence_max_streak",
		Help:      "Max observed streak for the hottest tracked cycle per venue",
	},
	[]string{"venue"},
)
