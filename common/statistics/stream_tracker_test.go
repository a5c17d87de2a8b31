package statistics

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var usersKey = protocol.StreamKey{Name: "users", Namespace: "public"}

// 8 bytes of data per record
func userRecord() *protocol.Record {
	return protocol.NewRecordMessage("users", "public", `{"id":1}`).Record
}

func userState(cursor string) *protocol.State {
	return protocol.NewStreamStateMessage("users", "public", `{"cursor":`+cursor+`}`).State
}

func emit(t *StreamStatsTracker, n int) {
	for i := 0; i < n; i++ {
		t.TrackRecord(userRecord())
	}
}

func TestStreamStatsTracker_CommitsWindowOfMatchingCheckpoint(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)

	emit(tracker, 1)
	tracker.TrackStateFromSource(userState("1"))
	emit(tracker, 2)
	tracker.TrackStateFromSource(userState("2"))
	emit(tracker, 4)

	tracker.TrackStateFromDestination(userState("1"))
	stats := tracker.Stats()
	assert.Equal(t, int64(7), stats.EmittedRecords)
	assert.Equal(t, int64(56), stats.EmittedBytes)
	assert.Equal(t, int64(1), stats.CommittedRecords)
	assert.Equal(t, int64(8), stats.CommittedBytes)
	assert.Equal(t, 1, stats.PendingCheckpoints)

	tracker.TrackStateFromDestination(userState("2"))
	stats = tracker.Stats()
	assert.Equal(t, int64(3), stats.CommittedRecords)
	assert.Equal(t, int64(24), stats.CommittedBytes)
	assert.Equal(t, 0, stats.PendingCheckpoints)
	assert.Equal(t, int64(2), stats.SourceStateCount)
	assert.Equal(t, int64(2), stats.DestinationStateCount)
	assert.True(t, stats.Reliable)
}

func TestStreamStatsTracker_BatchedAckCommitsEverythingBefore(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)

	for i, cursor := range []string{"1", "2", "3"} {
		emit(tracker, i+1)
		tracker.TrackStateFromSource(userState(cursor))
	}
	tracker.TrackStateFromDestination(userState("3"))

	stats := tracker.Stats()
	assert.Equal(t, int64(6), stats.CommittedRecords)
	assert.Equal(t, int64(48), stats.CommittedBytes)
	assert.Equal(t, 0, stats.PendingCheckpoints)
	assert.Equal(t, int64(1), stats.CommittedCheckpoints)
}

func TestStreamStatsTracker_DestinationEchoWithDifferentFormatting(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)

	emit(tracker, 2)
	tracker.TrackStateFromSource(protocol.NewStreamStateMessage("users", "public",
		`{"b": 2, "a": {"y": 1, "x": null}}`).State)
	tracker.TrackStateFromDestination(protocol.NewStreamStateMessage("users", "public",
		`{"a":{"x":null,"y":1},"b":2}`).State)

	assert.Equal(t, int64(2), tracker.Stats().CommittedRecords)
}

func TestStreamStatsTracker_StatesDifferingByNullAreDistinct(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)

	emit(tracker, 1)
	tracker.TrackStateFromSource(protocol.NewStreamStateMessage("users", "public", `{"cursor":"a","pk":null}`).State)
	emit(tracker, 2)
	tracker.TrackStateFromSource(protocol.NewStreamStateMessage("users", "public", `{"cursor":"a"}`).State)
	require.True(t, tracker.AreStatsReliable())

	tracker.TrackStateFromDestination(protocol.NewStreamStateMessage("users", "public", `{"pk": null, "cursor": "a"}`).State)
	stats := tracker.Stats()
	assert.Equal(t, int64(1), stats.CommittedRecords)
	assert.Equal(t, 1, stats.PendingCheckpoints)
}

func TestStreamStatsTracker_CollisionIsSticky(t *testing.T) {
	before := testutil.ToFloat64(metrics.CheckpointCollisions)
	tracker := NewStreamStatsTracker(usersKey, nil)

	emit(tracker, 1)
	tracker.TrackStateFromSource(userState("1"))
	emit(tracker, 1)
	tracker.TrackStateFromSource(userState("1"))

	require.False(t, tracker.AreStatsReliable())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CheckpointCollisions))

	// later well-formed checkpoints do not restore reliability
	emit(tracker, 1)
	tracker.TrackStateFromSource(userState("2"))
	tracker.TrackStateFromDestination(userState("2"))

	stats := tracker.Stats()
	assert.False(t, stats.Reliable)
	assert.Equal(t, int64(0), stats.CommittedRecords)
	assert.Equal(t, 0, stats.PendingCheckpoints)
	assert.Equal(t, int64(3), stats.EmittedRecords)
	assert.Equal(t, int64(3), stats.SourceStateCount)
	assert.Equal(t, int64(1), stats.DestinationStateCount)
}

func TestStreamStatsTracker_AnomalousAcks(t *testing.T) {
	emptyBefore := testutil.ToFloat64(metrics.AnomalousAcks.WithLabelValues("empty_queue"))
	unknownBefore := testutil.ToFloat64(metrics.AnomalousAcks.WithLabelValues("unknown_id"))
	tracker := NewStreamStatsTracker(usersKey, nil)

	tracker.TrackStateFromDestination(userState("1"))
	assert.Equal(t, emptyBefore+1, testutil.ToFloat64(metrics.AnomalousAcks.WithLabelValues("empty_queue")))

	emit(tracker, 3)
	tracker.TrackStateFromSource(userState("1"))
	tracker.TrackStateFromDestination(userState("99"))
	assert.Equal(t, unknownBefore+1, testutil.ToFloat64(metrics.AnomalousAcks.WithLabelValues("unknown_id")))

	stats := tracker.Stats()
	assert.Equal(t, int64(0), stats.CommittedRecords)
	assert.Equal(t, 1, stats.PendingCheckpoints)
	assert.True(t, stats.Reliable)

	// acking twice is anomalous and does not double count
	tracker.TrackStateFromDestination(userState("1"))
	tracker.TrackStateFromDestination(userState("1"))
	assert.Equal(t, int64(3), tracker.Stats().CommittedRecords)
}

func TestStreamStatsTracker_Timings(t *testing.T) {
	clock := newFakeClock()
	tracker := NewStreamStatsTracker(usersKey, clock.Now)

	tracker.TrackStateFromSource(userState("1"))
	clock.Advance(2 * time.Second)
	tracker.TrackStateFromSource(userState("2"))
	clock.Advance(4 * time.Second)
	tracker.TrackStateFromSource(userState("3"))

	clock.Advance(1 * time.Second)
	tracker.TrackStateFromDestination(userState("2"))
	clock.Advance(2 * time.Second)
	tracker.TrackStateFromDestination(userState("3"))

	stats := tracker.Stats()
	assert.InDelta(t, 4.0, stats.MaxSecondsBetweenSourceStates, 1e-9)
	assert.InDelta(t, 3.0, stats.MeanSecondsBetweenSourceStates, 1e-9)
	assert.Equal(t, int64(2), stats.SourceStateIntervals)

	// state 2 staged at t+2, acked at t+7; state 3 staged at t+6, acked at t+9
	assert.InDelta(t, 5.0, stats.MaxSecondsEmittedToCommitted, 1e-9)
	assert.InDelta(t, 4.0, stats.MeanSecondsEmittedToCommitted, 1e-9)
	assert.Equal(t, int64(2), stats.CommittedCheckpoints)
}

func TestStreamStatsTracker_EstimatesAreOverwritten(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)
	assert.False(t, tracker.Stats().HasEstimate)

	tracker.TrackEstimates(protocol.NewEstimateMessage(protocol.EstimateTypeStream, "users", "public", 100, 1000).Trace.Estimate)
	tracker.TrackEstimates(protocol.NewEstimateMessage(protocol.EstimateTypeStream, "users", "public", 50, 400).Trace.Estimate)

	stats := tracker.Stats()
	assert.True(t, stats.HasEstimate)
	assert.Equal(t, int64(50), stats.EstimatedRecords)
	assert.Equal(t, int64(400), stats.EstimatedBytes)
}

func TestStreamStatsTracker_ConcurrentSourceAndDestination(t *testing.T) {
	tracker := NewStreamStatsTracker(usersKey, nil)
	acks := make(chan *protocol.State, 16)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(acks)
		for i := 0; i < 500; i++ {
			emit(tracker, 2)
			state := userState(strconv.Itoa(i))
			tracker.TrackStateFromSource(state)
			acks <- state
		}
	}()
	go func() {
		defer wg.Done()
		for state := range acks {
			tracker.TrackStateFromDestination(state)
			_ = tracker.Stats()
		}
	}()
	wg.Wait()

	stats := tracker.Stats()
	assert.True(t, stats.Reliable)
	assert.Equal(t, int64(1000), stats.EmittedRecords)
	assert.Equal(t, int64(1000), stats.CommittedRecords)
	assert.Equal(t, 0, stats.PendingCheckpoints)
}
