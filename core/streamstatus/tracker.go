package streamstatus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/metrics"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"go.uber.org/zap"
)

type statusKey struct {
	rc     ReplicationContext
	stream protocol.StreamKey
}

type entry struct {
	mu     sync.Mutex
	status StreamStatus
}

// Tracker applies stream status transitions and mirrors them to a Store.
// Store failures are logged and never returned from Track.
type Tracker struct {
	store Store

	mu      sync.RWMutex
	entries map[statusKey]*entry

	log logger.ComponentLogger
}

// NewTracker creates a tracker pushing to store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:   store,
		entries: make(map[statusKey]*entry),
		log:     logger.ComponentWithName("StreamStatusTracker"),
	}
}

// Track applies ev. It returns an *InvalidTransitionError for transitions the
// state machine does not allow.
func (t *Tracker) Track(ctx context.Context, ev Event) error {
	if ev.TransitionedAt.IsZero() {
		ev.TransitionedAt = time.Now()
	}

	switch ev.Origin {
	case OriginInternal:
		return t.trackInternal(ctx, ev)
	case OriginSource, OriginDestination:
	default:
		return t.invalid(ev, "")
	}

	switch ev.Status {
	case RunStateStarted:
		return t.started(ctx, ev)
	case RunStateRunning, RunStateComplete, RunStateIncomplete:
		return t.transition(ctx, ev)
	default:
		return t.invalid(ev, "")
	}
}

func (t *Tracker) started(ctx context.Context, ev Event) error {
	key := statusKey{rc: ev.Context, stream: ev.Stream}

	t.mu.Lock()
	if existing, ok := t.entries[key]; ok {
		t.mu.Unlock()
		existing.mu.Lock()
		from := existing.status.CurrentStatus()
		existing.mu.Unlock()
		return t.invalid(ev, from)
	}
	e := &entry{}
	e.mu.Lock()
	t.entries[key] = e
	t.mu.Unlock()
	defer e.mu.Unlock()

	e.status = setOrigin(e.status, ev.Origin, RunStateStarted)
	id, err := t.store.CreateStatus(ctx, ev.Context, ev.Stream, ev.TransitionedAt)
	if err != nil {
		metrics.RecordStatusStoreFailure("create")
		t.log.Error("Failed to create stream status",
			append(t.fields(ev), zap.Error(err))...)
	} else {
		e.status.ID = id
		e.status.LastPushed = RunStateStarted
	}
	metrics.RecordStatusTransition(string(RunStateStarted), "applied")
	return nil
}

func (t *Tracker) transition(ctx context.Context, ev Event) error {
	e, ok := t.lookup(statusKey{rc: ev.Context, stream: ev.Stream})
	if !ok {
		return t.invalid(ev, "")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	current := e.status.CurrentStatus()

	var push *StatusUpdate
	switch ev.Status {
	case RunStateRunning:
		resumable := current == RunStateRunning && (e.status.IsRateLimited() || ev.RateLimit != nil)
		if current != RunStateStarted && !resumable {
			return t.invalid(ev, current)
		}
		e.status = setOrigin(e.status, ev.Origin, RunStateRunning)
		e.status.RateLimit = ev.RateLimit
		push = &StatusUpdate{RunState: RunStateRunning, RateLimit: ev.RateLimit}

	case RunStateComplete:
		e.status = setOrigin(e.status, ev.Origin, RunStateComplete)
		if e.status.IsComplete() && e.status.LastPushed != RunStateComplete {
			push = &StatusUpdate{RunState: RunStateComplete}
		}

	case RunStateIncomplete:
		e.status = setOrigin(e.status, ev.Origin, RunStateIncomplete)
		if e.status.LastPushed != RunStateIncomplete {
			push = &StatusUpdate{RunState: RunStateIncomplete, IncompleteCause: ev.Cause}
		}
	}

	metrics.RecordStatusTransition(string(ev.Status), "applied")
	if push != nil {
		push.TransitionedAt = ev.TransitionedAt
		t.push(ctx, ev, &e.status, *push)
	}
	return nil
}

// trackInternal force-terminates every stream of the attempt that has not
// terminated yet and forgets the attempt.
func (t *Tracker) trackInternal(ctx context.Context, ev Event) error {
	if !ev.Status.IsTerminal() {
		return t.invalid(ev, "")
	}

	t.mu.Lock()
	var owned []*entry
	var streams []protocol.StreamKey
	for key, e := range t.entries {
		if key.rc == ev.Context {
			owned = append(owned, e)
			streams = append(streams, key.stream)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for i, e := range owned {
		e.mu.Lock()
		if !e.status.LastPushed.IsTerminal() && !e.status.IsTerminated() {
			streamEv := ev
			streamEv.Stream = streams[i]
			update := StatusUpdate{RunState: ev.Status, TransitionedAt: ev.TransitionedAt}
			if ev.Status == RunStateIncomplete {
				update.IncompleteCause = ev.Cause
			}
			t.push(ctx, streamEv, &e.status, update)
			metrics.RecordStatusTransition(string(ev.Status), "forced")
		}
		e.mu.Unlock()
	}

	t.log.Info("Stream statuses finalized",
		zap.String("context", ev.Context.String()),
		zap.String("status", string(ev.Status)),
		zap.Int("streams", len(owned)))
	return nil
}

// push sends update for status, which the caller holds locked.
func (t *Tracker) push(ctx context.Context, ev Event, status *StreamStatus, update StatusUpdate) {
	if status.ID == "" {
		t.log.Warn("Stream status has no store id, skipping update",
			append(t.fields(ev), zap.String("runState", string(update.RunState)))...)
		return
	}
	update.ID = status.ID
	if err := t.store.UpdateStatus(ctx, update); err != nil {
		metrics.RecordStatusStoreFailure("update")
		t.log.Error("Failed to update stream status",
			append(t.fields(ev), zap.String("runState", string(update.RunState)), zap.Error(err))...)
		return
	}
	status.LastPushed = update.RunState
}

func (t *Tracker) invalid(ev Event, from RunState) error {
	metrics.RecordStatusTransition(string(ev.Status), "invalid")
	return &InvalidTransitionError{
		Stream:  ev.Stream,
		Origin:  ev.Origin,
		Context: ev.Context,
		From:    from,
		To:      ev.Status,
	}
}

func (t *Tracker) lookup(key statusKey) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	return e, ok
}

func (t *Tracker) fields(ev Event) []zap.Field {
	return []zap.Field{
		zap.String("stream", ev.Stream.String()),
		zap.Stringer("origin", ev.Origin),
		zap.String("connectionId", ev.Context.ConnectionID.String()),
		zap.Int64("jobId", ev.Context.JobID),
		zap.Int("attempt", ev.Context.AttemptNumber),
	}
}

func setOrigin(s StreamStatus, origin Origin, state RunState) StreamStatus {
	if origin == OriginDestination {
		s.DestinationStatus = state
	} else {
		s.SourceStatus = state
	}
	return s
}

// Get returns a copy of the tracked status of stream.
func (t *Tracker) Get(rc ReplicationContext, stream protocol.StreamKey) (StreamStatus, bool) {
	e, ok := t.lookup(statusKey{rc: rc, stream: stream})
	if !ok {
		return StreamStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// Streams lists the tracked streams of an attempt, ordered by namespace then
// name.
func (t *Tracker) Streams(rc ReplicationContext) []protocol.StreamKey {
	t.mu.RLock()
	var out []protocol.StreamKey
	for key := range t.entries {
		if key.rc == rc {
			out = append(out, key.stream)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}
