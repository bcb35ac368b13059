package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluator_events_consumed_total",
			Help: "Total number of indicator update events consumed",
		},
		[]string{"outcome"}, // "evaluated", "no_match", "poison", "error"
	)

	strategiesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluator_strategies_evaluated_total",
			Help: "Total number of strategy evaluation runs",
		},
	)

	evaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluator_strategy_latency_seconds",
			Help:    "Latency of a single strategy evaluation run",
			Buckets: []float64{0.001, 0.005, 0.01, 0.03, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)

	budgetExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluator_budget_exceeded_total",
			Help: "Total number of strategy runs exceeding the soft latency budget",
		},
	)

	actionsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluator_actions_published_total",
			Help: "Total number of action-required events published",
		},
	)

	actionsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluator_actions_throttled_total",
			Help: "Total number of triggers suppressed by the throttle store",
		},
	)
)
