package offsetstore

import (
	"context"
	"sync"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/slicing"
)

// MemoryStore is an in-process Store used by tests. It tracks seen offsets
// the same way the event log's in-memory fixtures do: a guarded map keyed
// by projection name and pid (the Pebble-backed store also keys by slice),
// minus the byte encoding.
type MemoryStore struct {
	mu       sync.Mutex
	offsets  map[string]OffsetRecord // key: projectionName + "/" + pid
	mgmt     map[string]ManagementState
	writeLog []WriteItem
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offsets: make(map[string]OffsetRecord),
		mgmt:    make(map[string]ManagementState),
	}
}

var _ Store = (*MemoryStore)(nil)

func memKey(projectionName, pid string) string { return projectionName + "/" + pid }

func (m *MemoryStore) LoadOffsets(ctx context.Context, projectionName string, minSlice, maxSlice int, timeWindow time.Duration, parallelism int) (*offsetstate.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := offsetstate.New()
	bySlice := map[int][]OffsetRecord{}
	for _, r := range m.offsets {
		if r.ProjectionName != projectionName || r.Slice < minSlice || r.Slice > maxSlice {
			continue
		}
		bySlice[r.Slice] = append(bySlice[r.Slice], r)
	}
	for _, records := range bySlice {
		var latest time.Time
		for _, r := range records {
			if r.Timestamp.After(latest) {
				latest = r.Timestamp
			}
		}
		cutoff := latest.Add(-timeWindow)
		for _, r := range records {
			if timeWindow > 0 && r.Timestamp.Before(cutoff) {
				continue
			}
			state.Add(offsetstate.Record{Slice: r.Slice, Pid: r.Pid, SeqNr: r.SeqNr, Timestamp: r.Timestamp})
		}
	}
	return state, nil
}

func (m *MemoryStore) SaveOffset(ctx context.Context, r OffsetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[memKey(r.ProjectionName, r.Pid)] = r
	return nil
}

func (m *MemoryStore) SaveOffsets(ctx context.Context, records []OffsetRecord, batchSize int) error {
	for _, batch := range chunk(records, batchSize) {
		for _, r := range batch {
			if err := m.SaveOffset(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemoryStore) TransactSaveOffset(ctx context.Context, writes []WriteItem, r OffsetRecord) error {
	return m.TransactSaveOffsets(ctx, writes, []OffsetRecord{r})
}

func (m *MemoryStore) TransactSaveOffsets(ctx context.Context, writes []WriteItem, records []OffsetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLog = append(m.writeLog, writes...)
	for _, r := range records {
		m.offsets[memKey(r.ProjectionName, r.Pid)] = r
	}
	return nil
}

func (m *MemoryStore) ReadManagementState(ctx context.Context, projectionName string) (ManagementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mgmt[projectionName], nil
}

func (m *MemoryStore) SavePaused(ctx context.Context, projectionName string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.mgmt[projectionName]
	st.Paused = paused
	m.mgmt[projectionName] = st
	return nil
}

func (m *MemoryStore) ManagementGetOffset(ctx context.Context, projectionName string, pid string) (OffsetRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.offsets[memKey(projectionName, pid)]
	return r, ok, nil
}

func (m *MemoryStore) ManagementSetOffset(ctx context.Context, projectionName string, r OffsetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ProjectionName = projectionName
	r.Slice = slicing.Slice(r.Pid)
	m.offsets[memKey(projectionName, r.Pid)] = r
	return nil
}

func (m *MemoryStore) ManagementClearOffset(ctx context.Context, projectionName string, paused bool) error {
	if !paused {
		return ErrClearWhileRunning
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.offsets {
		if r.ProjectionName == projectionName {
			delete(m.offsets, k)
		}
	}
	return nil
}

// WriteLog returns every user write item committed via a transactional
// save, for assertions in tests of exactly-once semantics.
func (m *MemoryStore) WriteLog() []WriteItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteItem(nil), m.writeLog...)
}
