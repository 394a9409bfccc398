package swapper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SwapsTotal counts Swapper invocations by venue and terminal status.
var SwapsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "swapper",
		Name:      "swaps_total",
		Help:      "Swap plans executed, by venue and terminal status",
	},
	[]string{"venue", "status"},
)

// MirrorReemitsTotal counts mirror order reposts by venue.
var MirrorReemitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "swapper",
		Name:      "mirror_reemits_total",
		Help:      "Mirror last-leg order reposts, by venue",
	},
	[]string{"venue"},
)

// MirrorForceClosesTotal counts force-closes and loss-guard skips.
var MirrorForceClosesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "swapper",
		Name:      "mirror_force_closes_total",
		Help:      "Mirror last-leg force-close attempts, by venue and outcome",
	},
	[]string{"venue", "outcome"}, // outcome: closed, skipped_loss_guard
)
