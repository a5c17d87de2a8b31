package statistics

import (
	"sync/atomic"
	"time"
)

// EmittedStatsCounters counts what the source emitted since the previous
// checkpoint of a stream.
type EmittedStatsCounters struct {
	records atomic.Int64
	bytes   atomic.Int64
}

func (e *EmittedStatsCounters) add(bytes int64) {
	e.records.Add(1)
	e.bytes.Add(bytes)
}

// Records returns the number of records in the window.
func (e *EmittedStatsCounters) Records() int64 {
	return e.records.Load()
}

// Bytes returns the number of bytes in the window.
func (e *EmittedStatsCounters) Bytes() int64 {
	return e.bytes.Load()
}

// StagedStats is a source checkpoint waiting for the destination to commit it.
type StagedStats struct {
	CheckpointID CheckpointID
	ReceivedAt   time.Time
	Emitted      *EmittedStatsCounters
}

// StreamStatsCounters are the monotonically growing per-stream counters.
// Estimates are the exception: they are overwritten.
type StreamStatsCounters struct {
	EmittedRecords        atomic.Int64
	EmittedBytes          atomic.Int64
	CommittedRecords      atomic.Int64
	CommittedBytes        atomic.Int64
	EstimatedRecords      atomic.Int64
	EstimatedBytes        atomic.Int64
	HasEstimate           atomic.Bool
	SourceStateCount      atomic.Int64
	DestinationStateCount atomic.Int64
}

// StreamStats is a point-in-time copy of a stream's tracking state.
type StreamStats struct {
	EmittedRecords        int64
	EmittedBytes          int64
	CommittedRecords      int64
	CommittedBytes        int64
	EstimatedRecords      int64
	EstimatedBytes        int64
	HasEstimate           bool
	SourceStateCount      int64
	DestinationStateCount int64

	// between consecutive source checkpoints
	MaxSecondsBetweenSourceStates  float64
	MeanSecondsBetweenSourceStates float64
	SourceStateIntervals           int64

	// between a checkpoint leaving the source and the destination committing it
	MaxSecondsEmittedToCommitted  float64
	MeanSecondsEmittedToCommitted float64
	CommittedCheckpoints          int64

	// staged checkpoints not yet acknowledged
	PendingCheckpoints int

	Reliable bool
}
