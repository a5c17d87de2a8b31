package tracker

import (
	"testing"
	"time"

	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/common/statistics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTracker(opts ...Option) (*MessageTracker, *statistics.StatsRegistry) {
	registry := statistics.NewStatsRegistry()
	return New(registry, opts...), registry
}

func TestMessageTracker_DispatchesToStats(t *testing.T) {
	mt, registry := newTracker()

	mt.AcceptFromSource(protocol.NewRecordMessage("users", "public", `{"id":1}`))
	mt.AcceptFromSource(protocol.NewRecordMessage("users", "public", `{"id":2}`))
	mt.AcceptFromSource(protocol.NewStreamStateMessage("users", "public", `{"cursor":2}`))
	mt.AcceptFromSource(protocol.NewEstimateMessage(protocol.EstimateTypeStream, "users", "public", 10, 80))
	mt.AcceptFromDestination(protocol.NewStreamStateMessage("users", "public", `{"cursor":2}`))

	// a record echoed by the destination is not counted
	mt.AcceptFromDestination(protocol.NewRecordMessage("users", "public", `{"id":3}`))

	total := registry.GetTotalStats(false)
	assert.Equal(t, int64(2), *total.RecordsEmitted)
	assert.Equal(t, int64(2), *total.RecordsCommitted)
	assert.Equal(t, int64(10), *total.EstimatedRecords)
	assert.Same(t, registry, mt.SyncStatsTracker())
}

func TestMessageTracker_IgnoresStatusAndControl(t *testing.T) {
	mt, registry := newTracker()

	mt.AcceptFromSource(protocol.NewStreamStatusMessage("users", "public", protocol.StreamStatusStarted))
	mt.AcceptFromSource(&protocol.Message{Type: protocol.TypeControl, Control: &protocol.Control{Type: "CONNECTOR_CONFIG"}})
	mt.AcceptFromSource(&protocol.Message{Type: protocol.TypeLog, Log: &protocol.Log{Level: "INFO", Message: "hi"}})
	mt.AcceptFromSource(&protocol.Message{Type: protocol.TypeTrace})

	assert.True(t, registry.GetTotalStats(false).IsEmpty())
	assert.Empty(t, mt.ErrorTraceMessageFailure(1, 0))
}

func TestMessageTracker_ErrorTracesSortedByEmission(t *testing.T) {
	mt, _ := newTracker()
	base := time.UnixMilli(1_700_000_000_000)

	mt.AcceptFromDestination(protocol.NewErrorTraceMessage("dest late", protocol.FailureTypeTransientError, base.Add(3*time.Second)))
	mt.AcceptFromSource(protocol.NewErrorTraceMessage("source late", protocol.FailureTypeConfigError, base.Add(2*time.Second)))
	mt.AcceptFromDestination(protocol.NewErrorTraceMessage("dest tie", "", base))
	mt.AcceptFromSource(protocol.NewErrorTraceMessage("source tie", protocol.FailureTypeSystemError, base))

	reasons := mt.ErrorTraceMessageFailure(42, 3)
	require.Len(t, reasons, 4)

	var messages []string
	for _, r := range reasons {
		messages = append(messages, r.ExternalMessage)
	}
	assert.Equal(t, []string{"source tie", "dest tie", "source late", "dest late"}, messages)

	assert.Equal(t, FailureOriginSource, reasons[0].FailureOrigin)
	assert.Equal(t, FailureTypeSystemError, reasons[1].FailureType)
	assert.Equal(t, FailureTypeConfigError, reasons[2].FailureType)
	assert.Equal(t, FailureTypeTransientError, reasons[3].FailureType)
	assert.Equal(t, base.Add(3*time.Second).UnixMilli(), reasons[3].Timestamp)

	assert.Equal(t, int64(42), reasons[0].Metadata[MetadataJobID])
	assert.Equal(t, 3, reasons[0].Metadata[MetadataAttemptNumber])
	assert.Equal(t, true, reasons[0].Metadata[MetadataFromTrace])
	assert.Equal(t, "read", reasons[0].Metadata[MetadataConnectorCommand])
	assert.Equal(t, "write", reasons[1].Metadata[MetadataConnectorCommand])
}

func TestMessageTracker_FailureReasonCarriesStream(t *testing.T) {
	mt, _ := newTracker()
	msg := protocol.NewErrorTraceMessage("boom", protocol.FailureTypeSystemError, time.Now())
	msg.Trace.Error.StackTrace = "at main()"
	msg.Trace.Error.StreamDescriptor = &protocol.StreamDescriptor{Name: "users", Namespace: "public"}
	mt.AcceptFromSource(msg)

	reasons := mt.ErrorTraceMessageFailure(1, 0)
	require.Len(t, reasons, 1)
	assert.Equal(t, "at main()", reasons[0].StackTrace)
	assert.Equal(t, &protocol.StreamDescriptor{Name: "users", Namespace: "public"}, reasons[0].StreamDescriptor)
}

func TestMessageTracker_FirstErrorTraces(t *testing.T) {
	mt, _ := newTracker()
	assert.Nil(t, mt.FirstSourceErrorTrace())
	assert.Nil(t, mt.FirstDestinationErrorTrace())

	mt.AcceptFromSource(protocol.NewErrorTraceMessage("first", protocol.FailureTypeSystemError, time.Now()))
	mt.AcceptFromSource(protocol.NewErrorTraceMessage("second", protocol.FailureTypeSystemError, time.Now()))
	mt.AcceptFromDestination(protocol.NewErrorTraceMessage("dest", protocol.FailureTypeSystemError, time.Now()))

	require.NotNil(t, mt.FirstSourceErrorTrace())
	assert.Equal(t, "first", mt.FirstSourceErrorTrace().Error.Message)
	assert.Equal(t, "dest", mt.FirstDestinationErrorTrace().Error.Message)
}

func TestMessageTracker_AnalyticsCounted(t *testing.T) {
	mt, registry := newTracker()
	before := testutil.ToFloat64(metrics.AnalyticsEvents.WithLabelValues("source", "cdc_lag"))

	mt.AcceptFromSource(&protocol.Message{
		Type: protocol.TypeTrace,
		Trace: &protocol.Trace{
			Type:      protocol.TraceTypeAnalytics,
			Analytics: &protocol.AnalyticsTrace{Type: "cdc_lag", Value: "12"},
		},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnalyticsEvents.WithLabelValues("source", "cdc_lag")))
	assert.True(t, registry.GetTotalStats(false).IsEmpty())
}

func TestMessageTracker_MessageLogging(t *testing.T) {
	tests := []struct {
		name string
		mode config.MessageLogMode
		want int
	}{
		{"none", config.MessageLogNone, 0},
		{"state", config.MessageLogState, 2},
		{"all", config.MessageLogAll, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			logger.UseLogger(zap.New(core))
			t.Cleanup(func() { logger.UseLogger(zap.NewNop()) })

			mt, registry := newTracker(WithMessageLogging(tt.mode))
			mt.AcceptFromSource(protocol.NewRecordMessage("users", "", `{"id":1}`))
			mt.AcceptFromSource(protocol.NewStreamStateMessage("users", "", `{"cursor":1}`))
			mt.AcceptFromDestination(protocol.NewStreamStateMessage("users", "", `{"cursor":1}`))

			assert.Equal(t, tt.want, logs.Filter(func(e observer.LoggedEntry) bool { return e.LoggerName == "MESSAGES" }).Len())
			// logging never changes the counts
			assert.Equal(t, int64(1), *registry.GetTotalStats(false).RecordsCommitted)
		})
	}
}
