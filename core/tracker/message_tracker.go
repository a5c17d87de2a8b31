// Package tracker is the entry point for every protocol message read from the
// source and destination connectors of a sync attempt.
package tracker

import (
	"sort"
	"sync"

	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/common/statistics"
	"go.uber.org/zap"
)

// Option configures a MessageTracker.
type Option func(*MessageTracker)

// WithMessageLogging echoes accepted messages to the MESSAGES logger.
func WithMessageLogging(mode config.MessageLogMode) Option {
	return func(t *MessageTracker) {
		t.logMode = mode
	}
}

// MessageTracker dispatches records, checkpoints and estimates to the stats
// tracker and keeps the error traces of both connectors.
type MessageTracker struct {
	stats statistics.SyncStatsTracker

	mu                sync.Mutex
	sourceErrors      []*protocol.Trace
	destinationErrors []*protocol.Trace

	logMode  config.MessageLogMode
	log      logger.ComponentLogger
	messages *zap.Logger
}

// New creates a tracker feeding stats.
func New(stats statistics.SyncStatsTracker, opts ...Option) *MessageTracker {
	t := &MessageTracker{
		stats:    stats,
		logMode:  config.MessageLogNone,
		log:      logger.ComponentWithName("MessageTracker"),
		messages: logger.Messages(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SyncStatsTracker exposes the underlying stats for summary consumers.
func (t *MessageTracker) SyncStatsTracker() statistics.SyncStatsTracker {
	return t.stats
}

// AcceptFromSource handles a message emitted by the source.
func (t *MessageTracker) AcceptFromSource(msg *protocol.Message) {
	t.logMessage(FailureOriginSource, msg)
	metrics.RecordMessage(string(FailureOriginSource), string(msg.Type))

	switch msg.Type {
	case protocol.TypeRecord:
		if msg.Record != nil {
			t.stats.TrackRecord(msg.Record)
		}
	case protocol.TypeState:
		if msg.State != nil {
			t.stats.TrackStateFromSource(msg.State)
		}
	case protocol.TypeTrace:
		t.handleTrace(FailureOriginSource, msg.Trace)
	default:
		t.log.Debug("Ignoring source message", zap.String("type", string(msg.Type)))
	}
}

// AcceptFromDestination handles a message emitted by the destination.
func (t *MessageTracker) AcceptFromDestination(msg *protocol.Message) {
	t.logMessage(FailureOriginDestination, msg)
	metrics.RecordMessage(string(FailureOriginDestination), string(msg.Type))

	switch msg.Type {
	case protocol.TypeState:
		if msg.State != nil {
			t.stats.TrackStateFromDestination(msg.State)
		}
	case protocol.TypeTrace:
		t.handleTrace(FailureOriginDestination, msg.Trace)
	case protocol.TypeRecord:
		t.log.Warn("Destination emitted a record, ignoring")
	default:
		t.log.Debug("Ignoring destination message", zap.String("type", string(msg.Type)))
	}
}

func (t *MessageTracker) handleTrace(origin FailureOrigin, trace *protocol.Trace) {
	if trace == nil {
		return
	}
	switch trace.Type {
	case protocol.TraceTypeEstimate:
		if trace.Estimate != nil {
			t.stats.TrackEstimates(trace.Estimate)
		}
	case protocol.TraceTypeError:
		t.mu.Lock()
		if origin == FailureOriginSource {
			t.sourceErrors = append(t.sourceErrors, trace)
		} else {
			t.destinationErrors = append(t.destinationErrors, trace)
		}
		t.mu.Unlock()
	case protocol.TraceTypeAnalytics:
		if trace.Analytics == nil {
			return
		}
		metrics.AnalyticsEvents.WithLabelValues(string(origin), trace.Analytics.Type).Inc()
		t.log.Info("Connector analytics event",
			zap.String("origin", string(origin)),
			zap.String("type", trace.Analytics.Type),
			zap.String("value", trace.Analytics.Value))
	case protocol.TraceTypeStreamStatus:
		// status transitions are owned by the stream status tracker
		t.log.Debug("Stream status trace not handled by message tracker", zap.String("origin", string(origin)))
	default:
		t.log.Warn("Unknown trace type, ignoring",
			zap.String("origin", string(origin)),
			zap.String("type", string(trace.Type)))
	}
}

func (t *MessageTracker) logMessage(origin FailureOrigin, msg *protocol.Message) {
	switch t.logMode {
	case config.MessageLogAll:
	case config.MessageLogState:
		if msg.Type != protocol.TypeState {
			return
		}
	default:
		return
	}

	raw, err := protocol.Encode(msg)
	if err != nil {
		t.log.Debug("Failed to encode message for logging", zap.Error(err))
		return
	}
	t.messages.Info("message",
		zap.String("origin", string(origin)),
		zap.String("type", string(msg.Type)),
		zap.ByteString("payload", raw))
}

// ErrorTraceMessageFailure builds failure reasons from all error traces seen
// so far, ordered by emission time. Ties keep source errors first.
func (t *MessageTracker) ErrorTraceMessageFailure(jobID int64, attemptNumber int) []FailureReason {
	type originTrace struct {
		origin FailureOrigin
		trace  *protocol.Trace
	}

	t.mu.Lock()
	all := make([]originTrace, 0, len(t.sourceErrors)+len(t.destinationErrors))
	for _, tr := range t.sourceErrors {
		all = append(all, originTrace{FailureOriginSource, tr})
	}
	for _, tr := range t.destinationErrors {
		all = append(all, originTrace{FailureOriginDestination, tr})
	}
	t.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].trace.EmittedAt < all[j].trace.EmittedAt
	})

	reasons := make([]FailureReason, 0, len(all))
	for _, ot := range all {
		reasons = append(reasons, failureReasonOf(ot.origin, ot.trace, jobID, attemptNumber))
	}
	return reasons
}

// FirstSourceErrorTrace returns the first error trace of the source, or nil.
func (t *MessageTracker) FirstSourceErrorTrace() *protocol.Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sourceErrors) == 0 {
		return nil
	}
	return t.sourceErrors[0]
}

// FirstDestinationErrorTrace returns the first error trace of the
// destination, or nil.
func (t *MessageTracker) FirstDestinationErrorTrace() *protocol.Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.destinationErrors) == 0 {
		return nil
	}
	return t.destinationErrors[0]
}
