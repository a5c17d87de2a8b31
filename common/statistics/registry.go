package statistics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"go.uber.org/zap"
)

// SyncStatsTracker is what the rest of the platform uses to feed and read the
// bookkeeping of one sync attempt.
type SyncStatsTracker interface {
	TrackRecord(record *protocol.Record)
	TrackStateFromSource(state *protocol.State)
	TrackStateFromDestination(state *protocol.State)
	TrackEstimates(estimate *protocol.EstimateTrace)

	// GetTotalStats covers every stream, legacy state included.
	GetTotalStats(hasReplicationCompleted bool) SyncStats
	// GetNamedStreamTotalStats covers named streams only.
	GetNamedStreamTotalStats(hasReplicationCompleted bool) SyncStats
	GetPerStreamStats(hasReplicationCompleted bool) []StreamSyncStats

	GetStreamToEmittedRecords() map[protocol.StreamKey]int64
	GetStreamToEmittedBytes() map[protocol.StreamKey]int64
	GetStreamToCommittedRecords() map[protocol.StreamKey]*int64
	GetStreamToCommittedBytes() map[protocol.StreamKey]*int64

	HasEstimateErrors() bool
	UnreliableStreams() []protocol.StreamKey
}

// Option configures a StatsRegistry.
type Option func(*StatsRegistry)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *StatsRegistry) {
		r.now = now
	}
}

// StatsRegistry owns one StreamStatsTracker per stream of a sync attempt and
// aggregates them. Build one per attempt.
type StatsRegistry struct {
	mu       sync.RWMutex
	trackers map[protocol.StreamKey]*StreamStatsTracker

	estimateMu          sync.Mutex
	estimateType        protocol.EstimateType
	hasEstimateErrors   atomic.Bool
	syncEstimateRecords int64
	syncEstimateBytes   int64
	hasSyncEstimate     bool

	now func() time.Time
	log logger.ComponentLogger
}

var _ SyncStatsTracker = (*StatsRegistry)(nil)

// NewStatsRegistry creates an empty registry.
func NewStatsRegistry(opts ...Option) *StatsRegistry {
	r := &StatsRegistry{
		trackers: make(map[protocol.StreamKey]*StreamStatsTracker),
		now:      time.Now,
		log:      logger.ComponentWithName("StatsRegistry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tracker returns the tracker for key, creating it on first use.
func (r *StatsRegistry) Tracker(key protocol.StreamKey) *StreamStatsTracker {
	r.mu.RLock()
	t, ok := r.trackers[key]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[key]; ok {
		return t
	}
	t = NewStreamStatsTracker(key, r.now)
	r.trackers[key] = t
	return t
}

// lookup returns the tracker for key without creating it.
func (r *StatsRegistry) lookup(key protocol.StreamKey) (*StreamStatsTracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[key]
	return t, ok
}

// TrackRecord routes a record to its stream.
func (r *StatsRegistry) TrackRecord(record *protocol.Record) {
	r.Tracker(protocol.NewStreamKey(record.Descriptor())).TrackRecord(record)
}

// TrackStateFromSource routes a source checkpoint; global checkpoints go to
// every stream they list.
func (r *StatsRegistry) TrackStateFromSource(state *protocol.State) {
	r.routeState(state, (*StreamStatsTracker).TrackStateFromSource)
}

// TrackStateFromDestination routes a destination checkpoint the same way.
func (r *StatsRegistry) TrackStateFromDestination(state *protocol.State) {
	r.routeState(state, (*StreamStatsTracker).TrackStateFromDestination)
}

func (r *StatsRegistry) routeState(state *protocol.State, track func(*StreamStatsTracker, *protocol.State)) {
	switch state.EffectiveType() {
	case protocol.StateTypeGlobal:
		if state.Global == nil {
			r.log.Warn("Global state message without global payload, ignoring")
			return
		}
		for _, ss := range state.Global.StreamStates {
			track(r.Tracker(protocol.NewStreamKey(ss.StreamDescriptor)), state)
		}
	case protocol.StateTypeStream:
		if state.Stream == nil {
			r.log.Warn("Stream state message without stream payload, ignoring")
			return
		}
		track(r.Tracker(protocol.NewStreamKey(state.Stream.StreamDescriptor)), state)
	case protocol.StateTypeLegacy:
		track(r.Tracker(protocol.LegacyStreamKey), state)
	default:
		r.log.Warn("Unknown state type, ignoring", zap.String("type", string(state.Type)))
	}
}

// TrackEstimates records an estimate. The first estimate decides whether the
// sync uses STREAM or SYNC estimates; mixing them disables estimates for the
// rest of the attempt.
func (r *StatsRegistry) TrackEstimates(estimate *protocol.EstimateTrace) {
	if r.hasEstimateErrors.Load() {
		return
	}

	r.estimateMu.Lock()
	if r.estimateType == "" {
		r.estimateType = estimate.Type
	}
	if r.estimateType != estimate.Type {
		r.hasEstimateErrors.Store(true)
		r.estimateMu.Unlock()
		metrics.EstimateTypeConflicts.Inc()
		r.log.Warn("Sync emitted both STREAM and SYNC estimates, estimates will not be reported",
			zap.String("expected", string(r.estimateType)),
			zap.String("received", string(estimate.Type)))
		return
	}

	switch estimate.Type {
	case protocol.EstimateTypeSync:
		r.syncEstimateRecords = estimate.RowEstimate
		r.syncEstimateBytes = estimate.ByteEstimate
		r.hasSyncEstimate = true
		r.estimateMu.Unlock()
	case protocol.EstimateTypeStream:
		r.estimateMu.Unlock()
		r.Tracker(protocol.NewStreamKey(estimate.Descriptor())).TrackEstimates(estimate)
	default:
		r.estimateMu.Unlock()
		r.log.Warn("Unknown estimate type, ignoring", zap.String("type", string(estimate.Type)))
	}
}

// HasEstimateErrors reports whether STREAM and SYNC estimates were mixed.
func (r *StatsRegistry) HasEstimateErrors() bool {
	return r.hasEstimateErrors.Load()
}

func (r *StatsRegistry) streamEstimatesEnabled() bool {
	r.estimateMu.Lock()
	defer r.estimateMu.Unlock()
	return !r.hasEstimateErrors.Load() && r.estimateType == protocol.EstimateTypeStream
}

type keyedStats struct {
	key   protocol.StreamKey
	stats StreamStats
}

func (r *StatsRegistry) snapshot(include func(protocol.StreamKey) bool) []keyedStats {
	r.mu.RLock()
	trackers := make([]*StreamStatsTracker, 0, len(r.trackers))
	for key, t := range r.trackers {
		if include(key) {
			trackers = append(trackers, t)
		}
	}
	r.mu.RUnlock()

	out := make([]keyedStats, 0, len(trackers))
	for _, t := range trackers {
		out = append(out, keyedStats{key: t.Key(), stats: t.Stats()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.Namespace != out[j].key.Namespace {
			return out[i].key.Namespace < out[j].key.Namespace
		}
		return out[i].key.Name < out[j].key.Name
	})
	return out
}

func allStreams(protocol.StreamKey) bool { return true }

func namedStreams(key protocol.StreamKey) bool { return !key.IsLegacy() }

// GetTotalStats aggregates every stream including the legacy bucket. With no
// stream touched every field is absent.
func (r *StatsRegistry) GetTotalStats(hasReplicationCompleted bool) SyncStats {
	return r.total(r.snapshot(allStreams), hasReplicationCompleted)
}

// GetNamedStreamTotalStats aggregates named streams only.
func (r *StatsRegistry) GetNamedStreamTotalStats(hasReplicationCompleted bool) SyncStats {
	return r.total(r.snapshot(namedStreams), hasReplicationCompleted)
}

func (r *StatsRegistry) total(streams []keyedStats, completed bool) SyncStats {
	if len(streams) == 0 {
		return SyncStats{}
	}
	stats := make([]StreamStats, len(streams))
	for i, s := range streams {
		stats[i] = s.stats
	}
	total := aggregate(stats, completed)
	total.EstimatedRecords, total.EstimatedBytes = r.totalEstimates(stats)
	return total
}

func (r *StatsRegistry) totalEstimates(stats []StreamStats) (*int64, *int64) {
	r.estimateMu.Lock()
	defer r.estimateMu.Unlock()
	if r.hasEstimateErrors.Load() {
		return nil, nil
	}
	switch r.estimateType {
	case protocol.EstimateTypeSync:
		if !r.hasSyncEstimate {
			return nil, nil
		}
		return int64Ptr(r.syncEstimateRecords), int64Ptr(r.syncEstimateBytes)
	case protocol.EstimateTypeStream:
		var records, bytes int64
		found := false
		for _, s := range stats {
			if s.HasEstimate {
				records += s.EstimatedRecords
				bytes += s.EstimatedBytes
				found = true
			}
		}
		if !found {
			return nil, nil
		}
		return int64Ptr(records), int64Ptr(bytes)
	default:
		return nil, nil
	}
}

// GetPerStreamStats returns one entry per named stream, ordered by namespace
// then name.
func (r *StatsRegistry) GetPerStreamStats(hasReplicationCompleted bool) []StreamSyncStats {
	streams := r.snapshot(namedStreams)
	withEstimates := r.streamEstimatesEnabled()

	out := make([]StreamSyncStats, 0, len(streams))
	for _, s := range streams {
		stats := aggregate([]StreamStats{s.stats}, hasReplicationCompleted)
		if withEstimates && s.stats.HasEstimate {
			stats.EstimatedRecords = int64Ptr(s.stats.EstimatedRecords)
			stats.EstimatedBytes = int64Ptr(s.stats.EstimatedBytes)
		}
		out = append(out, StreamSyncStats{
			StreamName:      s.key.Name,
			StreamNamespace: s.key.NamespacePtr(),
			Stats:           stats,
		})
	}
	return out
}

// aggregate folds stream snapshots into SyncStats, leaving estimates to the
// caller. On a completed replication everything emitted counts as committed.
// Committed counts and commit latencies are absent when any stream is
// unreliable, except that completion still synthesises committed counts.
func aggregate(streams []StreamStats, completed bool) SyncStats {
	var (
		recordsEmitted, bytesEmitted     int64
		recordsCommitted, bytesCommitted int64
		sourceStates, destStates         int64
		maxSinceState, maxToCommit       float64
		sinceSamples, toCommitSamples    []MeanSample
		committedKnown                   = true
		latencyKnown                     = true
	)

	for _, s := range streams {
		recordsEmitted += s.EmittedRecords
		bytesEmitted += s.EmittedBytes
		sourceStates += s.SourceStateCount
		destStates += s.DestinationStateCount

		switch {
		case completed:
			recordsCommitted += s.EmittedRecords
			bytesCommitted += s.EmittedBytes
		case s.Reliable:
			recordsCommitted += s.CommittedRecords
			bytesCommitted += s.CommittedBytes
		default:
			committedKnown = false
		}

		if s.MaxSecondsBetweenSourceStates > maxSinceState {
			maxSinceState = s.MaxSecondsBetweenSourceStates
		}
		sinceSamples = append(sinceSamples, MeanSample{Mean: s.MeanSecondsBetweenSourceStates, Count: s.SourceStateIntervals})

		if !s.Reliable {
			latencyKnown = false
			continue
		}
		if s.MaxSecondsEmittedToCommitted > maxToCommit {
			maxToCommit = s.MaxSecondsEmittedToCommitted
		}
		toCommitSamples = append(toCommitSamples, MeanSample{Mean: s.MeanSecondsEmittedToCommitted, Count: s.CommittedCheckpoints})
	}

	result := SyncStats{
		RecordsEmitted:                             int64Ptr(recordsEmitted),
		BytesEmitted:                               int64Ptr(bytesEmitted),
		SourceStateMessagesEmitted:                 int64Ptr(sourceStates),
		DestinationStateMessagesEmitted:            int64Ptr(destStates),
		MaxSecondsBeforeSourceStateMessageEmitted:  float64Ptr(maxSinceState),
		MeanSecondsBeforeSourceStateMessageEmitted: float64Ptr(WeightedMean(sinceSamples)),
	}
	if committedKnown {
		result.RecordsCommitted = int64Ptr(recordsCommitted)
		result.BytesCommitted = int64Ptr(bytesCommitted)
	}
	if latencyKnown {
		result.MaxSecondsBetweenStateMessageEmittedAndCommitted = float64Ptr(maxToCommit)
		result.MeanSecondsBetweenStateMessageEmittedAndCommitted = float64Ptr(WeightedMean(toCommitSamples))
	}
	return result
}

// GetStreamToEmittedRecords maps each named stream to its emitted records.
func (r *StatsRegistry) GetStreamToEmittedRecords() map[protocol.StreamKey]int64 {
	out := make(map[protocol.StreamKey]int64)
	for _, s := range r.snapshot(namedStreams) {
		out[s.key] = s.stats.EmittedRecords
	}
	return out
}

// GetStreamToEmittedBytes maps each named stream to its emitted bytes.
func (r *StatsRegistry) GetStreamToEmittedBytes() map[protocol.StreamKey]int64 {
	out := make(map[protocol.StreamKey]int64)
	for _, s := range r.snapshot(namedStreams) {
		out[s.key] = s.stats.EmittedBytes
	}
	return out
}

// GetStreamToCommittedRecords maps each named stream to its committed
// records; unreliable streams map to nil.
func (r *StatsRegistry) GetStreamToCommittedRecords() map[protocol.StreamKey]*int64 {
	out := make(map[protocol.StreamKey]*int64)
	for _, s := range r.snapshot(namedStreams) {
		if s.stats.Reliable {
			out[s.key] = int64Ptr(s.stats.CommittedRecords)
		} else {
			out[s.key] = nil
		}
	}
	return out
}

// GetStreamToCommittedBytes maps each named stream to its committed bytes;
// unreliable streams map to nil.
func (r *StatsRegistry) GetStreamToCommittedBytes() map[protocol.StreamKey]*int64 {
	out := make(map[protocol.StreamKey]*int64)
	for _, s := range r.snapshot(namedStreams) {
		if s.stats.Reliable {
			out[s.key] = int64Ptr(s.stats.CommittedBytes)
		} else {
			out[s.key] = nil
		}
	}
	return out
}

// UnreliableStreams lists streams whose checkpoint ids collided.
func (r *StatsRegistry) UnreliableStreams() []protocol.StreamKey {
	var out []protocol.StreamKey
	for _, s := range r.snapshot(allStreams) {
		if !s.stats.Reliable {
			out = append(out, s.key)
		}
	}
	return out
}

// AreStatsReliable is true when no stream is unreliable.
func (r *StatsRegistry) AreStatsReliable() bool {
	return len(r.UnreliableStreams()) == 0
}
