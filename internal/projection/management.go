package projection

import (
	"context"
	"errors"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstore"
)

// Management is the administrative surface exposed alongside a running (or
// paused) Driver: get/set a single pid's offset, clear every offset of the
// projection, read pause state, and pause/resume. Every call is retried with an askTimeout-bounded
// sub-context until it succeeds or the overall operationTimeout budget is
// exhausted; callers that need a tighter bound should pass a context with
// its own deadline, which wins if shorter.
type Management struct {
	name            string
	store           offsetstore.Store
	operationBudget time.Duration
	askTimeout      time.Duration
}

func newManagement(name string, store offsetstore.Store, operationBudget, askTimeout time.Duration) *Management {
	return &Management{name: name, store: store, operationBudget: operationBudget, askTimeout: askTimeout}
}

// NewManagement builds a standalone Management surface against store,
// for administrative tools that operate on a projection's persisted
// offsets without running its Driver (see cmd/projector's offset and
// pause/resume subcommands).
func NewManagement(name string, store offsetstore.Store, operationBudget, askTimeout time.Duration) *Management {
	return newManagement(name, store, operationBudget, askTimeout)
}

func (m *Management) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.operationBudget <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.operationBudget)
}

// withRetry runs fn inside the operationTimeout budget, re-invoking it in a
// fresh askTimeout-bounded sub-context each time an attempt's sub-context
// deadline is what caused it to fail. Any other error is permanent and
// returned immediately without retrying.
func (m *Management) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := m.withBudget(ctx)
	defer cancel()

	if m.askTimeout <= 0 {
		return fn(ctx)
	}

	for {
		askCtx, askCancel := context.WithTimeout(ctx, m.askTimeout)
		err := fn(askCtx)
		askCancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		return err
	}
}

// GetOffset returns the durably persisted offset for pid, bypassing
// whatever a live driver instance currently holds in memory.
func (m *Management) GetOffset(ctx context.Context, pid string) (offsetstore.OffsetRecord, bool, error) {
	var rec offsetstore.OffsetRecord
	var ok bool
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var err error
		rec, ok, err = m.store.ManagementGetOffset(ctx, m.name, pid)
		return err
	})
	return rec, ok, err
}

// SetOffset administratively overwrites the persisted offset for pid. The
// running driver instance, if any, only observes the change on its next
// restart (LoadOffsets re-reads the store); SetOffset does not reach into a
// live Driver's in-memory state.
func (m *Management) SetOffset(ctx context.Context, pid string, seqNr uint64, ts time.Time) error {
	return m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.ManagementSetOffset(ctx, m.name, offsetstore.OffsetRecord{Pid: pid, SeqNr: seqNr, Timestamp: ts})
	})
}

// ClearOffset removes every persisted offset for the projection. The
// projection must already be paused (GetManagementState().Paused); the
// store enforces this and returns offsetstore.ErrClearWhileRunning
// otherwise.
func (m *Management) ClearOffset(ctx context.Context) error {
	return m.withRetry(ctx, func(ctx context.Context) error {
		st, err := m.store.ReadManagementState(ctx, m.name)
		if err != nil {
			return err
		}
		return m.store.ManagementClearOffset(ctx, m.name, st.Paused)
	})
}

// GetManagementState reports whether the projection is currently paused.
func (m *Management) GetManagementState(ctx context.Context) (offsetstore.ManagementState, error) {
	var st offsetstore.ManagementState
	err := m.withRetry(ctx, func(ctx context.Context) error {
		var err error
		st, err = m.store.ReadManagementState(ctx, m.name)
		return err
	})
	return st, err
}

// SetPaused flips the persisted pause flag. A Driver reads the flag before
// each pass of its pull loop (at start and before every restart, see
// Driver.Run) and idles until it clears; a flag set while a pass is
// consuming envelopes is not seen until that pass ends.
func (m *Management) SetPaused(ctx context.Context, paused bool) error {
	return m.withRetry(ctx, func(ctx context.Context) error {
		return m.store.SavePaused(ctx, m.name, paused)
	})
}
