package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DroppedTotal counts opportunities the dispatcher never handed to the
// executor, by venue and reason (paused, busy, below_min_amount).
var DroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "dispatcher",
		Name:      "dropped_total",
		Help:      "Opportunities dropped before execution, by venue and reason",
	},
	[]string{"venue", "reason"},
)

// EmergencyPausesTotal counts emergency-pause triggers by venue.
var EmergencyPausesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "arbitrage",
		Subsystem: "dispatcher",
		Name:      "emergency_pauses_total",
		Help:      "Emergency pauses triggered on a negative realized delta, by venue",
	},
	[]string{"venue"},
)
