package statusstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/config"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testContext = streamstatus.ReplicationContext{
		WorkspaceID:   uuid.MustParse("5ae6b09b-fdec-41af-aaf7-7d94cfc33ef6"),
		ConnectionID:  uuid.MustParse("1b2c3d4e-0000-4000-8000-000000000001"),
		JobID:         11,
		AttemptNumber: 2,
		IsReset:       true,
	}
	users = protocol.StreamKey{Name: "users", Namespace: "public"}
	epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func exerciseStore(t *testing.T, store streamstatus.Store, get func(id string) Record) {
	ctx := context.Background()

	id, err := store.CreateStatus(ctx, testContext, users, epoch)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec := get(id)
	assert.Equal(t, users, rec.StreamKey())
	assert.Equal(t, streamstatus.JobTypeReset, rec.JobType)
	assert.Equal(t, streamstatus.RunStateStarted, rec.RunState)
	assert.Equal(t, int64(11), rec.JobID)
	assert.Equal(t, 2, rec.AttemptNumber)
	assert.True(t, epoch.Equal(rec.TransitionedAt))

	reset := epoch.Add(time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, streamstatus.StatusUpdate{
		ID:             id,
		RunState:       streamstatus.RunStateRunning,
		TransitionedAt: epoch.Add(time.Second),
		RateLimit:      &streamstatus.RateLimitInfo{QuotaReset: &reset},
	}))
	rec = get(id)
	assert.Equal(t, streamstatus.RunStateRunning, rec.RunState)
	require.NotNil(t, rec.QuotaReset)
	assert.True(t, reset.Equal(*rec.QuotaReset))

	require.NoError(t, store.UpdateStatus(ctx, streamstatus.StatusUpdate{
		ID:              id,
		RunState:        streamstatus.RunStateIncomplete,
		TransitionedAt:  epoch.Add(2 * time.Second),
		IncompleteCause: streamstatus.CauseCanceled,
	}))
	rec = get(id)
	assert.Equal(t, streamstatus.RunStateIncomplete, rec.RunState)
	assert.Equal(t, streamstatus.CauseCanceled, rec.IncompleteCause)
	assert.Nil(t, rec.QuotaReset)

	err = store.UpdateStatus(ctx, streamstatus.StatusUpdate{ID: "missing", RunState: streamstatus.RunStateComplete, TransitionedAt: epoch})
	assert.ErrorIs(t, err, ErrStatusNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store, func(id string) Record {
		rec, ok := store.Get(id)
		require.True(t, ok)
		return rec
	})

	require.Len(t, store.List(), 1)
	history := store.History(store.List()[0].ID)
	require.Len(t, history, 3)
	assert.Equal(t, streamstatus.RunStateStarted, history[0].RunState)
	assert.Equal(t, streamstatus.RunStateRunning, history[1].RunState)
	assert.Equal(t, streamstatus.RunStateIncomplete, history[2].RunState)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().CreateStatus(ctx, testContext, users, epoch)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "status.db")
	store, err := OpenSQLStore("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	exerciseStore(t, store, func(id string) Record {
		rec, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		return rec
	})

	other := protocol.StreamKey{Name: "accounts", Namespace: "public"}
	_, err = store.CreateStatus(context.Background(), testContext, other, epoch)
	require.NoError(t, err)

	records, err := store.ListByAttempt(context.Background(), testContext)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "accounts", records[0].StreamName)
	assert.Equal(t, "users", records[1].StreamName)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStatusNotFound)
}

func TestOpenSQLStore_Validation(t *testing.T) {
	_, err := OpenSQLStore("sqlite", "")
	assert.Error(t, err)
	_, err = OpenSQLStore("oracle", "whatever")
	assert.Error(t, err)
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		driver DriverType
		in     string
		want   string
	}{
		{MySQL, "jdbc:mysql://root:secret@db:3306/sync", "root:secret@tcp(db:3306)/sync?charset=utf8mb4&parseTime=True&loc=UTC"},
		{PostgreSQL, "jdbc:postgresql://app:pw@pg:5432/sync", "host=pg port=5432 user=app password=pw dbname=sync sslmode=disable"},
		{SQLServer, "jdbc:sqlserver://sa:pw@mssql:1433/sync", "sqlserver://sa:pw@mssql:1433?database=sync"},
		{SQLite, "jdbc:sqlite:/tmp/status.db", "/tmp/status.db"},
		{MySQL, "user:pw@tcp(localhost:3306)/sync", "user:pw@tcp(localhost:3306)/sync"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDSN(tt.driver, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeDSN(MySQL, "jdbc:mysql://db:3306")
	assert.Error(t, err)
	_, err = NormalizeDSN(MySQL, "jdbc:postgresql://db:5432/sync")
	assert.Error(t, err)
}

func TestParseDriverType(t *testing.T) {
	for name, want := range map[string]DriverType{
		"sqlite3":    SQLite,
		"MariaDB":    MySQL,
		"postgresql": PostgreSQL,
		"mssql":      SQLServer,
	} {
		got, err := ParseDriverType(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

type flakyStore struct {
	failures atomic.Int32
	calls    atomic.Int32
	err      error
	next     *MemoryStore
}

func (f *flakyStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, at time.Time) (string, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return "", f.err
	}
	return f.next.CreateStatus(ctx, rc, stream, at)
}

func (f *flakyStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return f.err
	}
	return f.next.UpdateStatus(ctx, update)
}

func TestRetryingStore_RetriesTransientFailures(t *testing.T) {
	flaky := &flakyStore{err: errors.New("connection reset"), next: NewMemoryStore()}
	flaky.failures.Store(2)
	store := NewRetryingStore(flaky, WithAttempts(3), WithDelay(time.Millisecond))

	id, err := store.CreateStatus(context.Background(), testContext, users, epoch)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.Same(t, flaky, store.Unwrap())
}

func TestRetryingStore_GivesUp(t *testing.T) {
	flaky := &flakyStore{err: errors.New("connection reset"), next: NewMemoryStore()}
	flaky.failures.Store(10)
	store := NewRetryingStore(flaky, WithAttempts(2), WithDelay(time.Millisecond))

	err := store.UpdateStatus(context.Background(), streamstatus.StatusUpdate{ID: "x", RunState: streamstatus.RunStateRunning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int32(2), flaky.calls.Load())
}

func TestRetryingStore_DoesNotRetryNotFound(t *testing.T) {
	flaky := &flakyStore{next: NewMemoryStore()}
	store := NewRetryingStore(flaky, WithAttempts(5), WithDelay(time.Millisecond))

	err := store.UpdateStatus(context.Background(), streamstatus.StatusUpdate{ID: "missing", RunState: streamstatus.RunStateRunning})
	assert.ErrorIs(t, err, ErrStatusNotFound)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := New(ctx, config.DefaultSettings().StatusStore)
	require.NoError(t, err)
	require.NoError(t, closeFn(ctx))
	retrying, ok := store.(*RetryingStore)
	require.True(t, ok)
	assert.IsType(t, &MemoryStore{}, retrying.Unwrap())

	sqlSettings := config.DefaultSettings().StatusStore
	sqlSettings.Type = "sql"
	sqlSettings.Driver = "sqlite"
	sqlSettings.DSN = filepath.Join(t.TempDir(), "status.db")
	store, closeFn, err = New(ctx, sqlSettings)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store.(*RetryingStore).Unwrap())
	require.NoError(t, closeFn(ctx))

	_, _, err = New(ctx, config.StoreSettings{Type: "etcd"})
	assert.Error(t, err)
	_, _, err = New(ctx, config.StoreSettings{Type: "mongo"})
	assert.Error(t, err)
	_, _, err = New(ctx, config.StoreSettings{Type: "redis"})
	assert.Error(t, err)
}

func TestTrackerWithMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	tracker := streamstatus.NewTracker(store)
	ctx := context.Background()

	for _, status := range []streamstatus.RunState{streamstatus.RunStateStarted, streamstatus.RunStateRunning, streamstatus.RunStateComplete} {
		require.NoError(t, tracker.Track(ctx, streamstatus.Event{
			Origin: streamstatus.OriginSource, Context: testContext, Stream: users, Status: status,
		}))
	}
	require.NoError(t, tracker.Track(ctx, streamstatus.Event{
		Origin: streamstatus.OriginDestination, Context: testContext, Stream: users, Status: streamstatus.RunStateComplete,
	}))

	records := store.List()
	require.Len(t, records, 1)
	assert.Equal(t, streamstatus.RunStateComplete, records[0].RunState)
	assert.Len(t, store.History(records[0].ID), 3)
}
