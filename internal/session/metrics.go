package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narrative_sessions_active",
		Help: "Number of live story sessions.",
	})
	sessionActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_session_actions_total",
			Help: "Session actions by result.",
		},
		[]string{"action", "result"},
	)
	staleGenerationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrative_stale_generations_total",
		Help: "Generation results discarded because a newer request superseded them.",
	})
	optionFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrative_option_fallbacks_total",
		Help: "Times the fixed fallback options were used.",
	})
)

func recordAction(action string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	sessionActionsTotal.WithLabelValues(action, result).Inc()
}
