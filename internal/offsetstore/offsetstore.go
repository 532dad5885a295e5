// Package offsetstore is the persistence port the projection driver uses to
// load offsets on startup, persist accepted offsets (singly, batched, or
// transactionally alongside a user write payload), and read/write the
// management state (pause flag, administrative offset overrides).
package offsetstore

import (
	"context"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
)

// OffsetRecord is a single persisted offset: the most recently committed
// position for one pid within one projection's slice space.
type OffsetRecord struct {
	ProjectionName string
	Slice          int
	Pid            string
	SeqNr          uint64
	Timestamp      time.Time
	// ExpiresAt is non-nil when the projection's time-to-live configuration
	// assigns this record a deletion deadline. The backend is responsible
	// for sweeping expired records; the core never relies on reading one
	// past its deadline.
	ExpiresAt *time.Time
}

// WriteItem is an opaque user-supplied write applied atomically alongside an
// offset commit under the exactly-once offset strategy.
type WriteItem struct {
	Key   []byte
	Value []byte
}

// ManagementState is the administrative flag set read and written through
// the offset store, shared across all instances of a projection.
type ManagementState struct {
	Paused bool
}

// ErrClearWhileRunning is returned by ManagementClearOffset when invoked
// against a projection that is not paused. Clearing offsets while the
// projection is actively consuming is not well-defined (the in-memory state
// would immediately re-derive the cleared position from its own records),
// so the store requires the caller to pause first.
var ErrClearWhileRunning = errClearWhileRunning{}

type errClearWhileRunning struct{}

func (errClearWhileRunning) Error() string {
	return "offsetstore: clearOffset requires the projection to be paused"
}

// Store is the port consumed by the projection driver and management
// surface. Implementations must make SaveOffsets atomic per batch (not
// across batches) and TransactSaveOffset(s) atomic across the user payload
// and the offset record.
type Store interface {
	// LoadOffsets reads every persisted record within timeWindow of each
	// slice's latest timestamp, for every slice in [minSlice, maxSlice], up
	// to parallelism concurrent slice reads, and merges them into a fresh
	// State.
	LoadOffsets(ctx context.Context, projectionName string, minSlice, maxSlice int, timeWindow time.Duration, parallelism int) (*offsetstate.State, error)

	SaveOffset(ctx context.Context, r OffsetRecord) error
	SaveOffsets(ctx context.Context, records []OffsetRecord, batchSize int) error

	TransactSaveOffset(ctx context.Context, writes []WriteItem, r OffsetRecord) error
	TransactSaveOffsets(ctx context.Context, writes []WriteItem, records []OffsetRecord) error

	ReadManagementState(ctx context.Context, projectionName string) (ManagementState, error)
	SavePaused(ctx context.Context, projectionName string, paused bool) error

	// ManagementGetOffset returns the persisted offset for pid within
	// projectionName, if any, bypassing in-memory state entirely — this is
	// the durable source of truth the management surface exposes.
	ManagementGetOffset(ctx context.Context, projectionName string, pid string) (OffsetRecord, bool, error)
	// ManagementSetOffset administratively overwrites the persisted offset
	// for one pid.
	ManagementSetOffset(ctx context.Context, projectionName string, r OffsetRecord) error
	// ManagementClearOffset removes every persisted offset for
	// projectionName. Returns ErrClearWhileRunning unless paused is true —
	// callers are expected to have already confirmed the projection is
	// paused via ReadManagementState.
	ManagementClearOffset(ctx context.Context, projectionName string, paused bool) error
}

func recordToState(records []OffsetRecord) *offsetstate.State {
	s := offsetstate.New()
	in := make([]offsetstate.Record, 0, len(records))
	for _, r := range records {
		in = append(in, offsetstate.Record{Slice: r.Slice, Pid: r.Pid, SeqNr: r.SeqNr, Timestamp: r.Timestamp})
	}
	s.Add(in...)
	return s
}

func chunk(records []OffsetRecord, size int) [][]OffsetRecord {
	if size <= 0 {
		size = len(records)
		if size == 0 {
			size = 1
		}
	}
	var out [][]OffsetRecord
	for len(records) > 0 {
		n := size
		if n > len(records) {
			n = len(records)
		}
		out = append(out, records[:n])
		records = records[n:]
	}
	return out
}
