package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chimera_http_requests_total",
		Help: "HTTP requests handled, by route pattern and status code.",
	}, []string{"path", "code"})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chimera_tool_calls_total",
		Help: "Computer-use tool dispatches, by tool and outcome.",
	}, []string{"tool", "outcome"})

	chatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chimera_chat_turns_total",
		Help: "Chat completions routed, by provider and outcome.",
	}, []string{"provider", "outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chimera_active_sessions",
		Help: "Browser sessions currently in the session table.",
	})
)

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
