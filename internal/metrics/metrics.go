package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast channel metrics
	EventsPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_broadcast_events_posted_total",
			Help: "Total events posted on the broadcast channel",
		},
		[]string{"kind"},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_broadcast_events_received_total",
			Help: "Total events received from the broadcast channel",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qchat_broadcast_events_dropped_total",
			Help: "Events dropped because a listener buffer was full",
		},
	)

	// Sync metrics
	MessagesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_messages_merged_total",
			Help: "Messages added to a tab log",
		},
		[]string{"source"}, // "local", "message", "sync-messages"
	)

	// Storage metrics
	StorageWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_storage_writes_total",
			Help: "Local store writes by key",
		},
		[]string{"key"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_storage_errors_total",
			Help: "Local store failures by key and reason",
		},
		[]string{"key", "reason"}, // "quota", "write", "decode"
	)

	// Attachment metrics
	AttachmentFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_attachment_fetches_total",
			Help: "Attachment loads by outcome",
		},
		[]string{"result"}, // "found", "unavailable", "failed"
	)

	BlobLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qchat_blob_latency_seconds",
			Help:    "Blob store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// Tabs
	OpenTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qchat_open_tabs",
			Help: "Tabs currently hosted by the daemon",
		},
	)

	// RPC
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qchat_rpc_requests_total",
			Help: "Daemon RPCs by method and status code",
		},
		[]string{"method", "code"},
	)
)
