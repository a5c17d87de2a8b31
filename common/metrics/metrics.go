// Package metrics exposes prometheus counters for the bookkeeping core. The
// embedding process decides whether and where to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "synctrack"
)

var (
	// MessagesTotal counts protocol messages accepted per origin and type
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of protocol messages accepted",
		},
		[]string{"origin", "type"}, // origin: source/destination, type: RECORD/STATE/...
	)

	// CheckpointCollisions counts streams that became unreliable
	CheckpointCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_collisions_total",
			Help:      "Number of streams whose checkpoint ids collided among outstanding checkpoints",
		},
	)

	// AnomalousAcks counts destination checkpoints that matched nothing outstanding
	AnomalousAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalous_destination_acks_total",
			Help:      "Destination checkpoints that did not match an outstanding source checkpoint",
		},
		[]string{"reason"}, // unknown_id/empty_queue
	)

	// EstimateTypeConflicts counts syncs that mixed STREAM and SYNC estimates
	EstimateTypeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_type_conflicts_total",
			Help:      "Syncs that emitted both STREAM and SYNC scoped estimates",
		},
	)

	// AnalyticsEvents counts connector analytics traces
	AnalyticsEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_analytics_events_total",
			Help:      "Analytics trace events emitted by connectors",
		},
		[]string{"origin", "type"},
	)

	// StatusTransitions counts stream status transitions per outcome
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_status_transitions_total",
			Help:      "Stream status transitions handled",
		},
		[]string{"status", "result"}, // result: applied/invalid/forced
	)

	// StatusStoreFailures counts failed calls to the external status store
	StatusStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_store_failures_total",
			Help:      "Failed calls to the stream status store",
		},
		[]string{"operation"}, // create/update
	)
)

// RecordMessage increments the accepted message counter.
func RecordMessage(origin, msgType string) {
	MessagesTotal.WithLabelValues(origin, msgType).Inc()
}

// RecordAnomalousAck increments the anomalous ack counter.
func RecordAnomalousAck(reason string) {
	AnomalousAcks.WithLabelValues(reason).Inc()
}

// RecordStatusTransition increments the status transition counter.
func RecordStatusTransition(status, result string) {
	StatusTransitions.WithLabelValues(status, result).Inc()
}

// RecordStatusStoreFailure increments the store failure counter.
func RecordStatusStoreFailure(operation string) {
	StatusStoreFailures.WithLabelValues(operation).Inc()
}
