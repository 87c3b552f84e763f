// Package metrics provides Prometheus metrics for the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of open signal connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanhub_active_connections",
			Help: "Number of currently open signal connections",
		},
	)

	// Channels tracks channel records held by the arena, empty ones included.
	Channels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanhub_channels",
			Help: "Number of channel records held in memory",
		},
	)

	// ChannelsPruned counts empty channel records removed by the janitor.
	ChannelsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanhub_channels_pruned_total",
			Help: "Total number of empty channels pruned",
		},
	)

	// EventsReceived counts inbound events by type.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanhub_events_received_total",
			Help: "Total number of events received from clients",
		},
		[]string{"event"},
	)

	// EventsDelivered counts event copies handed to connections.
	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanhub_events_delivered_total",
			Help: "Total number of event copies delivered to connections",
		},
		[]string{"event"},
	)

	// EventsDropped counts events that reached nobody or were refused.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanhub_events_dropped_total",
			Help: "Total number of dropped events",
		},
		[]string{"event", "reason"},
	)

	// LiveCalls tracks calls in ringing or accepted state.
	LiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanhub_live_calls",
			Help: "Number of calls that are ringing or accepted",
		},
	)

	// CallTransitions tracks call state changes.
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanhub_call_transitions_total",
			Help: "Total number of call state transitions",
		},
		[]string{"from_state", "to_state"},
	)
)

// Drop reasons.
const (
	ReasonNoMembers    = "no_members"
	ReasonBadPayload   = "bad_payload"
	ReasonUnknownCall  = "unknown_call"
	ReasonNotJoined    = "not_joined"
	ReasonRateLimited  = "rate_limited"
	ReasonBackpressure = "backpressure"
	ReasonUnknownEvent = "unknown_event"
)

func RecordConnectionOpened() { ActiveConnections.Inc() }
func RecordConnectionClosed() { ActiveConnections.Dec() }

func RecordReceived(event string) { EventsReceived.WithLabelValues(event).Inc() }

func RecordDelivered(event string, n int) {
	if n > 0 {
		EventsDelivered.WithLabelValues(event).Add(float64(n))
	}
}

func RecordDropped(event, reason string) {
	EventsDropped.WithLabelValues(event, reason).Inc()
}

// RecordCallTransition records a call state change. A transition from the
// empty state is a new call.
func RecordCallTransition(fromState, toState string) {
	CallTransitions.WithLabelValues(fromState, toState).Inc()
}
