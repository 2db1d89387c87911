package minerchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minerchain_blocks_ingested_total",
		Help: "Blocks accepted by ingest, labeled by outcome.",
	}, []string{"outcome"})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minerchain_canonical_height",
		Help: "Index of the current canonical tip.",
	})

	miningAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minerchain_mining_attempts_total",
		Help: "Total nonce attempts made while mining blocks locally.",
	})

	miningBlocksFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minerchain_mining_blocks_found_total",
		Help: "Blocks successfully mined locally.",
	})

	currentDifficultyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minerchain_current_difficulty",
		Help: "Difficulty currently being targeted for the active epoch.",
	})
)
