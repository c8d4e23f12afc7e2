package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCommitted = "committed"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

var (
	postsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookkeeping",
			Subsystem: "journal",
			Name:      "posts_total",
			Help:      "Journal post attempts by outcome",
		},
		[]string{"outcome"},
	)
	degradedCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookkeeping",
			Subsystem: "journal",
			Name:      "degraded_commits_total",
			Help:      "Entries committed to memory only because the external write failed",
		},
	)
)
