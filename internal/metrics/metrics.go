// Package metrics provides Prometheus metrics for usage ingestion, task
// synchronization and the realtime usage feed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsageRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_usage_recorded_seconds_total",
			Help: "Seconds of usage accepted from the tracker",
		},
		[]string{"app"},
	)
	InvariantCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_sync_invariant_corrections_total",
			Help: "Completed tasks found still active and deactivated",
		},
	)
	InvariantFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_sync_invariant_failures_total",
			Help: "Fetches that gave up with completed tasks still active",
		},
	)
	FeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_feed_messages_total",
			Help: "Usage feed messages handled by the client, by result",
		},
		[]string{"result"},
	)
	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_feed_reconnects_total",
			Help: "Reconnect attempts scheduled by the usage feed client",
		},
	)
	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_feed_subscribers",
			Help: "Websocket clients connected to the usage push hub",
		},
	)
	FeedBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_feed_broadcasts_total",
			Help: "Usage snapshots pushed by the hub, by trigger",
		},
		[]string{"trigger"},
	)
	TrackerCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_tracker_commands_total",
			Help: "Start/stop commands issued to the desktop tracker",
		},
		[]string{"command"},
	)
	ChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_change_events_total",
			Help: "Row change notifications received from Postgres",
		},
		[]string{"table", "op"},
	)
)
