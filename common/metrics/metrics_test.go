package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	// The registry is global, so assert on deltas.
	before := testutil.ToFloat64(MessagesTotal.WithLabelValues("source", "RECORD"))
	RecordMessage("source", "RECORD")
	RecordMessage("source", "RECORD")
	assert.Equal(t, before+2, testutil.ToFloat64(MessagesTotal.WithLabelValues("source", "RECORD")))

	before = testutil.ToFloat64(AnomalousAcks.WithLabelValues("unknown_id"))
	RecordAnomalousAck("unknown_id")
	assert.Equal(t, before+1, testutil.ToFloat64(AnomalousAcks.WithLabelValues("unknown_id")))

	before = testutil.ToFloat64(StatusStoreFailures.WithLabelValues("create"))
	RecordStatusStoreFailure("create")
	assert.Equal(t, before+1, testutil.ToFloat64(StatusStoreFailures.WithLabelValues("create")))

	before = testutil.ToFloat64(StatusTransitions.WithLabelValues("RUNNING", "applied"))
	RecordStatusTransition("RUNNING", "applied")
	assert.Equal(t, before+1, testutil.ToFloat64(StatusTransitions.WithLabelValues("RUNNING", "applied")))
}
