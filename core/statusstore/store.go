// Package statusstore holds the backends stream statuses are mirrored to.
package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
)

// ErrStatusNotFound is returned when updating an id the store does not know.
var ErrStatusNotFound = errors.New("stream status not found")

// Record is the stored form of a stream status, shared by the backends.
type Record struct {
	ID              string
	WorkspaceID     string
	ConnectionID    string
	JobID           int64
	AttemptNumber   int
	JobType         streamstatus.JobType
	StreamName      string
	StreamNamespace string
	RunState        streamstatus.RunState
	IncompleteCause streamstatus.IncompleteCause
	QuotaReset      *time.Time
	TransitionedAt  time.Time
}

// StreamKey returns the stream the record belongs to.
func (r Record) StreamKey() protocol.StreamKey {
	return protocol.StreamKey{Name: r.StreamName, Namespace: r.StreamNamespace}
}

func newRecord(id string, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) Record {
	return Record{
		ID:              id,
		WorkspaceID:     rc.WorkspaceID.String(),
		ConnectionID:    rc.ConnectionID.String(),
		JobID:           rc.JobID,
		AttemptNumber:   rc.AttemptNumber,
		JobType:         rc.JobType(),
		StreamName:      stream.Name,
		StreamNamespace: stream.Namespace,
		RunState:        streamstatus.RunStateStarted,
		TransitionedAt:  transitionedAt,
	}
}

func (r *Record) apply(update streamstatus.StatusUpdate) {
	r.RunState = update.RunState
	r.TransitionedAt = update.TransitionedAt
	r.IncompleteCause = update.IncompleteCause
	r.QuotaReset = nil
	if update.RateLimit != nil {
		r.QuotaReset = update.RateLimit.QuotaReset
	}
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close(ctx context.Context) error
}

// New builds the backend selected by settings, wrapped with retry and
// timeout handling. The returned close function releases the backend.
func New(ctx context.Context, settings config.StoreSettings) (streamstatus.Store, func(context.Context) error, error) {
	var (
		backend streamstatus.Store
		err     error
	)

	switch settings.Type {
	case "", "memory":
		backend = NewMemoryStore()
	case "sql":
		backend, err = OpenSQLStore(settings.Driver, settings.DSN)
	case "mongo":
		backend, err = NewMongoStore(ctx, settings.URI, settings.Database, settings.Collection)
	case "redis":
		backend, err = NewRedisStore(ctx, settings.Addr, settings.Password, settings.DB, settings.KeyPrefix)
	default:
		return nil, nil, fmt.Errorf("unsupported status store type %q", settings.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s status store: %w", settings.Type, err)
	}

	closeFn := func(context.Context) error { return nil }
	if c, ok := backend.(Closer); ok {
		closeFn = c.Close
	}

	store := NewRetryingStore(backend,
		WithAttempts(settings.RetryAttempts),
		WithDelay(settings.RetryDelay),
		WithTimeout(settings.Timeout))
	return store, closeFn, nil
}
