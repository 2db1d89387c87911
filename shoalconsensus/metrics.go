package shoalconsensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	anchorsSelected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoal_anchors_selected_total",
		Help: "Anchors selected across all rounds processed.",
	})

	certificatesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shoal_certificates_committed_total",
		Help: "Certificates committed via the causal-closure commit rule.",
	})

	currentRoundGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoal_current_round",
		Help: "Current consensus round.",
	})

	lastCommittedRoundGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shoal_last_committed_round",
		Help: "Round of the most recently committed anchor.",
	})
)
