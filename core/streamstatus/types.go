// Package streamstatus tracks the lifecycle of every stream of a sync attempt
// and mirrors it to an external status store.
package streamstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/protocol"
)

// RunState is the lifecycle status of a stream.
type RunState string

const (
	RunStateStarted    RunState = "STARTED"
	RunStateRunning    RunState = "RUNNING"
	RunStateComplete   RunState = "COMPLETE"
	RunStateIncomplete RunState = "INCOMPLETE"
)

// IsTerminal reports whether no further transition is expected.
func (s RunState) IsTerminal() bool {
	return s == RunStateComplete || s == RunStateIncomplete
}

// Origin says who reported a transition.
type Origin int

const (
	OriginSource Origin = iota
	OriginDestination
	// OriginInternal is used by the platform itself when an attempt ends.
	OriginInternal
)

func (o Origin) String() string {
	switch o {
	case OriginSource:
		return "SOURCE"
	case OriginDestination:
		return "DESTINATION"
	case OriginInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// IncompleteCause qualifies an INCOMPLETE status.
type IncompleteCause string

const (
	CauseFailed   IncompleteCause = "FAILED"
	CauseCanceled IncompleteCause = "CANCELED"
)

// JobType distinguishes regular syncs from reset runs.
type JobType string

const (
	JobTypeSync  JobType = "SYNC"
	JobTypeReset JobType = "RESET"
)

// ReplicationContext identifies the sync attempt a status belongs to.
type ReplicationContext struct {
	WorkspaceID   uuid.UUID
	ConnectionID  uuid.UUID
	JobID         int64
	AttemptNumber int
	IsReset       bool
}

// JobType is RESET for reset runs and SYNC otherwise.
func (rc ReplicationContext) JobType() JobType {
	if rc.IsReset {
		return JobTypeReset
	}
	return JobTypeSync
}

func (rc ReplicationContext) String() string {
	return fmt.Sprintf("connection=%s job=%d attempt=%d", rc.ConnectionID, rc.JobID, rc.AttemptNumber)
}

// RateLimitInfo is attached to RUNNING updates of a throttled stream.
type RateLimitInfo struct {
	QuotaReset *time.Time
}

// StatusUpdate is one change pushed to the store.
type StatusUpdate struct {
	ID              string
	RunState        RunState
	TransitionedAt  time.Time
	IncompleteCause IncompleteCause
	RateLimit       *RateLimitInfo
}

// Store is the external system stream statuses are mirrored to.
type Store interface {
	// CreateStatus registers a STARTED stream and returns its id.
	CreateStatus(ctx context.Context, rc ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
}

// Event is one reported transition.
type Event struct {
	Origin         Origin
	Context        ReplicationContext
	Stream         protocol.StreamKey
	Status         RunState
	Cause          IncompleteCause
	RateLimit      *RateLimitInfo
	TransitionedAt time.Time
}

// EventFromTrace converts a STREAM_STATUS trace into an event.
func EventFromTrace(origin Origin, rc ReplicationContext, trace *protocol.Trace) (Event, error) {
	if trace == nil || trace.StreamStatus == nil {
		return Event{}, fmt.Errorf("trace is not a stream status trace")
	}
	st := trace.StreamStatus

	var state RunState
	switch st.Status {
	case protocol.StreamStatusStarted:
		state = RunStateStarted
	case protocol.StreamStatusRunning:
		state = RunStateRunning
	case protocol.StreamStatusComplete:
		state = RunStateComplete
	case protocol.StreamStatusIncomplete:
		state = RunStateIncomplete
	default:
		return Event{}, fmt.Errorf("unknown stream status %q", st.Status)
	}

	ev := Event{
		Origin:         origin,
		Context:        rc,
		Stream:         protocol.NewStreamKey(st.StreamDescriptor),
		Status:         state,
		TransitionedAt: trace.EmittedTime(),
	}
	if state == RunStateIncomplete {
		ev.Cause = CauseFailed
	}
	if rl := st.RateLimit(); rl != nil {
		info := &RateLimitInfo{}
		if rl.QuotaReset != nil {
			reset := time.UnixMilli(*rl.QuotaReset)
			info.QuotaReset = &reset
		}
		ev.RateLimit = info
	}
	return ev, nil
}

// StreamStatus is the tracked state of one stream.
type StreamStatus struct {
	ID                string
	SourceStatus      RunState
	DestinationStatus RunState
	// LastPushed is the last status sent to the store.
	LastPushed RunState
	RateLimit  *RateLimitInfo
}

// CurrentStatus is the destination's status once it reported one, the
// source's otherwise.
func (s StreamStatus) CurrentStatus() RunState {
	if s.DestinationStatus != "" {
		return s.DestinationStatus
	}
	return s.SourceStatus
}

// IsComplete is true once both sides reported COMPLETE.
func (s StreamStatus) IsComplete() bool {
	return s.SourceStatus == RunStateComplete && s.DestinationStatus == RunStateComplete
}

// IsIncomplete is true once both sides reported INCOMPLETE.
func (s StreamStatus) IsIncomplete() bool {
	return s.SourceStatus == RunStateIncomplete && s.DestinationStatus == RunStateIncomplete
}

// IsTerminated is true when the stream is complete or incomplete on both sides.
func (s StreamStatus) IsTerminated() bool {
	return s.IsComplete() || s.IsIncomplete()
}

// IsRateLimited reports whether the last RUNNING transition was throttled.
func (s StreamStatus) IsRateLimited() bool {
	return s.RateLimit != nil
}
