package cashbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var autopostTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bookkeeping",
		Subsystem: "cashbook",
		Name:      "autopost_total",
		Help:      "Cash book records by journal and auto-posting outcome",
	},
	[]string{"journal", "outcome"},
)
