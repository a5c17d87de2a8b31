package statistics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StreamStatsTracker turns the record and checkpoint events of one stream into
// emitted and committed counts. A destination checkpoint commits every record
// emitted up to and including the window of the matching source checkpoint.
//
// The source reader calls TrackRecord and TrackStateFromSource, the destination
// reader calls TrackStateFromDestination; both may run concurrently.
type StreamStatsTracker struct {
	key      protocol.StreamKey
	counters StreamStatsCounters

	current    atomic.Pointer[EmittedStatsCounters]
	unreliable atomic.Bool

	mu                 sync.Mutex
	staged             []*StagedStats
	outstanding        map[CheckpointID]struct{}
	lastSourceStateAt  time.Time
	sawSourceState     bool
	sinceLastState     intervalStat
	emittedToCommitted intervalStat

	now       func() time.Time
	log       logger.ComponentLogger
	anomalies *rate.Sometimes
}

// NewStreamStatsTracker creates a tracker for key. now may be nil.
func NewStreamStatsTracker(key protocol.StreamKey, now func() time.Time) *StreamStatsTracker {
	if now == nil {
		now = time.Now
	}
	t := &StreamStatsTracker{
		key:         key,
		outstanding: make(map[CheckpointID]struct{}),
		now:         now,
		log: logger.ComponentWithName("StreamStatsTracker").
			With(zap.String("stream", key.String())),
		anomalies: &rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
	t.current.Store(&EmittedStatsCounters{})
	return t
}

// Key returns the stream this tracker accounts for.
func (t *StreamStatsTracker) Key() protocol.StreamKey {
	return t.key
}

// TrackRecord counts a record in the current checkpoint window.
func (t *StreamStatsTracker) TrackRecord(record *protocol.Record) {
	size := record.SizeInBytes()
	t.current.Load().add(size)
	t.counters.EmittedRecords.Add(1)
	t.counters.EmittedBytes.Add(size)
}

// TrackStateFromSource closes the current window under the checkpoint's id.
func (t *StreamStatsTracker) TrackStateFromSource(state *protocol.State) {
	t.counters.SourceStateCount.Add(1)
	if t.unreliable.Load() {
		return
	}

	id := CheckpointIDOf(state)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.outstanding[id]; dup {
		t.unreliable.Store(true)
		t.staged = nil
		t.outstanding = make(map[CheckpointID]struct{})
		metrics.CheckpointCollisions.Inc()
		t.log.Warn("Checkpoint id collision, committed stats for this stream are no longer tracked",
			zap.String("checkpointId", id.String()))
		return
	}

	emitted := t.current.Swap(&EmittedStatsCounters{})
	t.staged = append(t.staged, &StagedStats{
		CheckpointID: id,
		ReceivedAt:   now,
		Emitted:      emitted,
	})
	t.outstanding[id] = struct{}{}

	if t.sawSourceState {
		t.sinceLastState.observe(now.Sub(t.lastSourceStateAt).Seconds())
	}
	t.lastSourceStateAt = now
	t.sawSourceState = true
}

// TrackStateFromDestination commits every staged window up to and including
// the one matching the checkpoint.
func (t *StreamStatsTracker) TrackStateFromDestination(state *protocol.State) {
	t.counters.DestinationStateCount.Add(1)
	if t.unreliable.Load() {
		return
	}

	id := CheckpointIDOf(state)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.staged) == 0 {
		t.anomaly("empty_queue", id)
		return
	}
	if _, ok := t.outstanding[id]; !ok {
		t.anomaly("unknown_id", id)
		return
	}

	for len(t.staged) > 0 {
		head := t.staged[0]
		t.staged[0] = nil
		t.staged = t.staged[1:]
		delete(t.outstanding, head.CheckpointID)

		t.counters.CommittedRecords.Add(head.Emitted.Records())
		t.counters.CommittedBytes.Add(head.Emitted.Bytes())

		if head.CheckpointID == id {
			t.emittedToCommitted.observe(now.Sub(head.ReceivedAt).Seconds())
			break
		}
	}
}

func (t *StreamStatsTracker) anomaly(reason string, id CheckpointID) {
	metrics.RecordAnomalousAck(reason)
	t.anomalies.Do(func() {
		t.log.Warn("Destination checkpoint does not match an outstanding source checkpoint",
			zap.String("reason", reason),
			zap.String("checkpointId", id.String()))
	})
}

// TrackEstimates replaces the stream's estimates; estimates are absolute.
func (t *StreamStatsTracker) TrackEstimates(estimate *protocol.EstimateTrace) {
	t.counters.EstimatedRecords.Store(estimate.RowEstimate)
	t.counters.EstimatedBytes.Store(estimate.ByteEstimate)
	t.counters.HasEstimate.Store(true)
}

// AreStatsReliable is false once a checkpoint id collided.
func (t *StreamStatsTracker) AreStatsReliable() bool {
	return !t.unreliable.Load()
}

// Stats returns a snapshot of the tracker.
func (t *StreamStatsTracker) Stats() StreamStats {
	t.mu.Lock()
	since := t.sinceLastState
	toCommit := t.emittedToCommitted
	pending := len(t.staged)
	t.mu.Unlock()

	return StreamStats{
		EmittedRecords:        t.counters.EmittedRecords.Load(),
		EmittedBytes:          t.counters.EmittedBytes.Load(),
		CommittedRecords:      t.counters.CommittedRecords.Load(),
		CommittedBytes:        t.counters.CommittedBytes.Load(),
		EstimatedRecords:      t.counters.EstimatedRecords.Load(),
		EstimatedBytes:        t.counters.EstimatedBytes.Load(),
		HasEstimate:           t.counters.HasEstimate.Load(),
		SourceStateCount:      t.counters.SourceStateCount.Load(),
		DestinationStateCount: t.counters.DestinationStateCount.Load(),

		MaxSecondsBetweenSourceStates:  since.max,
		MeanSecondsBetweenSourceStates: since.mean,
		SourceStateIntervals:           since.count,

		MaxSecondsEmittedToCommitted:  toCommit.max,
		MeanSecondsEmittedToCommitted: toCommit.mean,
		CommittedCheckpoints:          toCommit.count,

		PendingCheckpoints: pending,
		Reliable:           t.AreStatsReliable(),
	}
}
