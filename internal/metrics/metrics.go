// Package metrics exposes Prometheus instrumentation for the pipeline.
// Label cardinality is bounded: results and reasons come from closed
// sets, never from message content.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesParsed counts parse attempts by outcome:
	// parsed, non_trading, error
	MessagesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeconsensus",
		Subsystem: "parser",
		Name:      "messages_parsed_total",
		Help:      "Raw messages processed by parse outcome",
	}, []string{"result"})

	// SignalsSaved counts persisted signals by direction
	SignalsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeconsensus",
		Subsystem: "parser",
		Name:      "signals_saved_total",
		Help:      "Parsed signals persisted by direction",
	}, []string{"direction"})

	// ParseBatchDuration observes wall time of one parsing batch
	ParseBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeconsensus",
		Subsystem: "parser",
		Name:      "batch_duration_seconds",
		Help:      "Duration of one parsing batch",
		Buckets:   prometheus.DefBuckets,
	})

	// ConsensusDetections counts detector outcomes:
	// detected, no_consensus, duplicate, error
	ConsensusDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeconsensus",
		Subsystem: "detector",
		Name:      "detections_total",
		Help:      "Consensus detector invocations by outcome",
	}, []string{"result"})

	// DetectionDuration observes one CheckNewSignal call
	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeconsensus",
		Subsystem: "detector",
		Name:      "detection_duration_seconds",
		Help:      "Duration of one consensus detection",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// ConsensusStrength observes the strength of detected events
	ConsensusStrength = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeconsensus",
		Subsystem: "detector",
		Name:      "consensus_strength",
		Help:      "Strength score of detected consensus events",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// BacktestDuration observes one full backtest run
	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeconsensus",
		Subsystem: "backtest",
		Name:      "run_duration_seconds",
		Help:      "Duration of one backtest run",
		Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
	})

	// BacktestTrades counts simulated trades by exit reason
	BacktestTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeconsensus",
		Subsystem: "backtest",
		Name:      "trades_total",
		Help:      "Simulated trades by exit reason",
	}, []string{"exit_reason"})

	// CandlesFetched counts candle rows loaded from market data by source
	CandlesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeconsensus",
		Subsystem: "market",
		Name:      "candles_fetched_total",
		Help:      "Candles fetched by source (vendor, cache)",
	}, []string{"source"})
)
