package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_gateway_messages_total",
			Help: "Total number of inbound messages processed",
		},
		[]string{"platform", "outcome"},
	)

	GenerateLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "persona_gateway_generate_latency_seconds",
			Help: "Generative provider call latency in seconds",
		},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_gateway_provider_errors_total",
			Help: "Total number of failed generative provider calls",
		},
		[]string{"provider"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "persona_gateway_active_sessions",
			Help: "Number of active user sessions",
		},
	)

	PendingReminders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "persona_gateway_pending_reminders",
			Help: "Number of reminders waiting to fire",
		},
	)

	RemindersDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_gateway_reminders_delivered_total",
			Help: "Total number of reminder delivery attempts",
		},
		[]string{"status"},
	)

	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persona_gateway_index_operations_total",
			Help: "Total number of semantic index operations",
		},
		[]string{"op", "status"},
	)
)
