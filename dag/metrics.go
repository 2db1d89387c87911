package dag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	certificatesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dag_certificates_ingested_total",
		Help: "Certificates accepted or rejected by the DAG, by outcome.",
	}, []string{"outcome"})

	highestRoundGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dag_highest_round",
		Help: "Highest round with at least one certificate in the local DAG.",
	})

	roundSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dag_latest_round_size",
		Help: "Number of certificates at the highest observed round.",
	})
)
