package statusstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
)

// MemoryStore keeps statuses in process, with their full history.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	history map[string][]Record
}

var _ streamstatus.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		history: make(map[string][]Record),
	}
}

func (m *MemoryStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	rec := newRecord(id, rc, stream, transitionedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = &rec
	m.history[id] = append(m.history[id], rec)
	return id, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[update.ID]
	if !ok {
		return ErrStatusNotFound
	}
	rec.apply(update)
	m.history[update.ID] = append(m.history[update.ID], *rec)
	return nil
}

// Get returns the latest version of a status.
func (m *MemoryStore) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// History returns every version of a status, oldest first.
func (m *MemoryStore) History(id string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.history[id]...)
}

// List returns the latest version of every status.
func (m *MemoryStore) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out
}
