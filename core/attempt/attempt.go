// Package attempt wires the trackers of one sync attempt together and replays
// connector output through them.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/logger"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/common/statistics"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"github.com/longkeyy/datax-synctrack/core/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State represents the lifecycle state of an attempt
type State string

const (
	StateCreated   State = "CREATED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// ErrConnectorFailure is returned when a connector emitted an error trace.
var ErrConnectorFailure = errors.New("connector reported a failure")

// Summary is what remains of an attempt once it finished.
type Summary struct {
	ConnectionID   string                       `json:"connectionId"`
	JobID          int64                        `json:"jobId"`
	AttemptNumber  int                          `json:"attemptNumber"`
	State          State                        `json:"state"`
	StartTime      time.Time                    `json:"startTime"`
	EndTime        time.Time                    `json:"endTime"`
	TotalStats     statistics.SyncStats         `json:"totalStats"`
	PerStreamStats []statistics.StreamSyncStats `json:"perStreamStats"`
	FailureReasons []tracker.FailureReason      `json:"failureReasons,omitempty"`
	StatsReliable  bool                         `json:"statsReliable"`
}

// Status provides a lightweight snapshot of attempt state
type Status struct {
	ID        string                `json:"id"`
	State     State                 `json:"state"`
	StartTime time.Time             `json:"startTime"`
	EndTime   time.Time             `json:"endTime,omitempty"`
	Progress  *statistics.SyncStats `json:"progress,omitempty"`
	Summary   *Summary              `json:"summary,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Attempt is one observable sync attempt.
// Following Go's exec.Cmd pattern: create, start (async), wait (block).
type Attempt struct {
	ID string
	rc streamstatus.ReplicationContext

	stats          *statistics.StatsRegistry
	messages       *tracker.MessageTracker
	statuses       *streamstatus.Tracker
	reportInterval time.Duration
	summaryLog     *logger.SummaryLogger

	startTime time.Time
	endTime   time.Time
	state     State
	summary   *Summary

	done chan struct{}
	err  error
	mu   sync.RWMutex
}

// New creates an attempt (but does not start it). Every tracker is owned by
// the attempt; nothing is shared with other attempts.
func New(settings config.Settings, store streamstatus.Store) *Attempt {
	stats := statistics.NewStatsRegistry()
	return &Attempt{
		ID: uuid.NewString(),
		rc: streamstatus.ReplicationContext{
			WorkspaceID:   settings.Attempt.WorkspaceID,
			ConnectionID:  settings.Attempt.ConnectionID,
			JobID:         settings.Attempt.JobID,
			AttemptNumber: settings.Attempt.AttemptNumber,
			IsReset:       settings.Attempt.IsReset,
		},
		stats:          stats,
		messages:       tracker.New(stats, tracker.WithMessageLogging(settings.MessageLogging)),
		statuses:       streamstatus.NewTracker(store),
		reportInterval: settings.ReportInterval,
		summaryLog:     logger.NewSummaryLogger("AttemptSummary"),
		state:          StateCreated,
		done:           make(chan struct{}),
	}
}

// Context returns the replication context the attempt reports statuses for.
func (a *Attempt) Context() streamstatus.ReplicationContext {
	return a.rc
}

// StreamStatuses exposes the status tracker, mainly for inspection while running.
func (a *Attempt) StreamStatuses() *streamstatus.Tracker {
	return a.statuses
}

// Start begins consuming both readers asynchronously
func (a *Attempt) Start(ctx context.Context, source, destination protocol.MessageReader) error {
	a.mu.Lock()
	if state := a.state; state != StateCreated {
		a.mu.Unlock()
		return fmt.Errorf("attempt %s already started (state: %s)", a.ID, state)
	}
	a.state = StateRunning
	a.startTime = time.Now()
	a.mu.Unlock()

	go a.run(ctx, source, destination)
	return nil
}

// Wait blocks until the attempt completes and returns its summary
func (a *Attempt) Wait() (*Summary, error) {
	<-a.done
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.summary, a.err
}

// Run executes the attempt synchronously
func (a *Attempt) Run(ctx context.Context, source, destination protocol.MessageReader) (*Summary, error) {
	if err := a.Start(ctx, source, destination); err != nil {
		return nil, err
	}
	return a.Wait()
}

// Done returns a channel that is closed when the attempt completes
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Status returns current attempt status snapshot
func (a *Attempt) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := Status{
		ID:        a.ID,
		State:     a.state,
		StartTime: a.startTime,
		EndTime:   a.endTime,
		Summary:   a.summary,
	}
	if a.err != nil {
		status.Error = a.err.Error()
	}
	if a.state == StateRunning {
		progress := a.stats.GetTotalStats(false)
		status.Progress = &progress
	}
	return status
}

func (a *Attempt) run(ctx context.Context, source, destination protocol.MessageReader) {
	defer close(a.done)

	connectionID := a.rc.ConnectionID.String()
	ctx = logger.WithAttemptContext(ctx, connectionID, a.rc.JobID, a.rc.AttemptNumber)
	log := logger.AttemptLoggerFromContext(ctx)
	a.summaryLog.LogAttemptStart(connectionID, a.rc.JobID, a.rc.AttemptNumber)

	if a.reportInterval > 0 {
		reporter := NewProgressReporter(a.stats, a.reportInterval)
		reporter.Start()
		defer reporter.Stop()
	}

	err := a.consume(ctx, source, destination)
	if err == nil {
		err = a.connectorFailure()
	}
	a.finalize(ctx, err)

	a.mu.Lock()
	a.endTime = time.Now()
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		a.state = StateCancelled
	case err != nil:
		a.state = StateFailed
	default:
		a.state = StateSucceeded
	}
	a.err = err
	a.summary = a.buildSummary(err == nil)
	summary := a.summary
	a.mu.Unlock()

	if err != nil {
		log.Warn("Sync attempt did not succeed", zap.String("state", string(summary.State)), zap.Error(err))
		a.summaryLog.LogAttemptError(connectionID, a.rc.JobID, a.rc.AttemptNumber, err)
	}
	a.summaryLog.LogAttemptComplete(connectionID, a.rc.JobID, a.rc.AttemptNumber, figuresOf(summary))
}

// consume drains the source and the destination concurrently.
func (a *Attempt) consume(ctx context.Context, source, destination protocol.MessageReader) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.drain(gctx, streamstatus.OriginSource, source, a.messages.AcceptFromSource)
	})
	g.Go(func() error {
		return a.drain(gctx, streamstatus.OriginDestination, destination, a.messages.AcceptFromDestination)
	})
	return g.Wait()
}

func (a *Attempt) drain(ctx context.Context, origin streamstatus.Origin, r protocol.MessageReader, accept func(*protocol.Message)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s messages: %w", origin, err)
		}

		accept(msg)
		if msg.Type == protocol.TypeTrace && msg.Trace != nil && msg.Trace.Type == protocol.TraceTypeStreamStatus {
			a.trackStatus(ctx, origin, msg.Trace)
		}
	}
}

// trackStatus applies a status trace; rejected transitions are logged only.
func (a *Attempt) trackStatus(ctx context.Context, origin streamstatus.Origin, trace *protocol.Trace) {
	log := logger.AttemptLoggerFromContext(ctx)
	ev, err := streamstatus.EventFromTrace(origin, a.rc, trace)
	if err != nil {
		log.Warn("Malformed stream status trace", zap.String("origin", origin.String()), zap.Error(err))
		return
	}
	if err := a.statuses.Track(ctx, ev); err != nil {
		log.Warn("Stream status transition rejected", zap.Error(err))
	}
}

func (a *Attempt) connectorFailure() error {
	if trace := a.messages.FirstSourceErrorTrace(); trace != nil {
		return fmt.Errorf("%w: source: %s", ErrConnectorFailure, errorMessage(trace))
	}
	if trace := a.messages.FirstDestinationErrorTrace(); trace != nil {
		return fmt.Errorf("%w: destination: %s", ErrConnectorFailure, errorMessage(trace))
	}
	return nil
}

func errorMessage(trace *protocol.Trace) string {
	if trace.Error == nil || trace.Error.Message == "" {
		return "no message"
	}
	return trace.Error.Message
}

// finalize terminates every stream still open. It runs even when ctx was
// cancelled.
func (a *Attempt) finalize(ctx context.Context, err error) {
	ev := streamstatus.Event{
		Origin:  streamstatus.OriginInternal,
		Context: a.rc,
		Status:  streamstatus.RunStateComplete,
	}
	if err != nil {
		ev.Status = streamstatus.RunStateIncomplete
		ev.Cause = streamstatus.CauseFailed
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			ev.Cause = streamstatus.CauseCanceled
		}
	}
	if trackErr := a.statuses.Track(context.WithoutCancel(ctx), ev); trackErr != nil {
		logger.AttemptLoggerFromContext(ctx).Error("Failed to finalize stream statuses", zap.Error(trackErr))
	}
}

func (a *Attempt) buildSummary(completed bool) *Summary {
	return &Summary{
		ConnectionID:   a.rc.ConnectionID.String(),
		JobID:          a.rc.JobID,
		AttemptNumber:  a.rc.AttemptNumber,
		State:          a.state,
		StartTime:      a.startTime,
		EndTime:        a.endTime,
		TotalStats:     a.stats.GetTotalStats(completed),
		PerStreamStats: a.stats.GetPerStreamStats(completed),
		FailureReasons: a.messages.ErrorTraceMessageFailure(a.rc.JobID, a.rc.AttemptNumber),
		StatsReliable:  a.stats.AreStatsReliable(),
	}
}

func figuresOf(s *Summary) *logger.AttemptFigures {
	return &logger.AttemptFigures{
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		RecordsEmitted:   statistics.Int64Value(s.TotalStats.RecordsEmitted, -1),
		BytesEmitted:     statistics.Int64Value(s.TotalStats.BytesEmitted, -1),
		RecordsCommitted: statistics.Int64Value(s.TotalStats.RecordsCommitted, -1),
		BytesCommitted:   statistics.Int64Value(s.TotalStats.BytesCommitted, -1),
		SourceStates:     statistics.Int64Value(s.TotalStats.SourceStateMessagesEmitted, -1),
		DestStates:       statistics.Int64Value(s.TotalStats.DestinationStateMessagesEmitted, -1),
		StatsReliable:    s.StatsReliable,
		FailureCount:     len(s.FailureReasons),
	}
}
