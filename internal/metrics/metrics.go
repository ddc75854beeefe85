package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Polling metrics
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telerelay_cycles_total",
			Help: "Total polling cycles run",
		},
	)

	PollFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telerelay_poll_failures_total",
			Help: "Upstream poll failures by kind",
		},
		[]string{"kind"}, // "transient" or "unauthorized"
	)

	UpdatesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telerelay_updates_fetched_total",
			Help: "Raw updates fetched from the source",
		},
	)

	// Routing metrics
	MessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telerelay_messages_delivered_total",
			Help: "Messages delivered to destination channels",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telerelay_delivery_failures_total",
			Help: "Destination sends that failed",
		},
	)

	ChatsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telerelay_chats_discovered_total",
			Help: "Chat titles newly recorded for a tenant",
		},
	)
)
