// Package metrics exposes Prometheus collectors for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive is the number of live WebSocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatrelay",
		Name:      "connections_active",
		Help:      "Number of live WebSocket connections.",
	})

	// EventsInbound counts inbound realtime events by type.
	EventsInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "events_inbound_total",
		Help:      "Inbound realtime events by type.",
	}, []string{"type"})

	// PushesDelivered counts events enqueued to subscriber connections.
	PushesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "pushes_delivered_total",
		Help:      "Events enqueued to subscriber connections.",
	})

	// PushesDropped counts pushes dropped because a client's send buffer was
	// full (the client is closed as too slow).
	PushesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "pushes_dropped_total",
		Help:      "Pushes dropped due to slow clients.",
	})
)
