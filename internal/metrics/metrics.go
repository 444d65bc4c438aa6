// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoomsOpen tracks the number of live rooms in the registry.
	RoomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_rooms_open",
		Help: "Number of rooms with at least one participant.",
	})

	// Participants tracks participant entries across all rooms.
	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_participants",
		Help: "Number of participant entries across all rooms.",
	})

	// EventsTotal counts inbound signaling events by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_total",
		Help: "Inbound signaling events processed, by event type.",
	}, []string{"type"})

	// EventsDropped counts inbound events rejected by validation.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_events_dropped_total",
		Help: "Inbound events dropped for missing or invalid fields.",
	})
)
