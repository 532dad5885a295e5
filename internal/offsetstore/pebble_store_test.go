package offsetstore

import (
	"context"
	"testing"
	"time"

	pebblestore "github.com/leviramsey/sliceoffset/internal/storage/pebble"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleStore(db)
}

func TestPebbleStoreSaveAndLoadOffsets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	records := []OffsetRecord{
		{ProjectionName: "orders", Slice: 449, Pid: "p1", SeqNr: 3, Timestamp: t0},
		{ProjectionName: "orders", Slice: 450, Pid: "p2", SeqNr: 1, Timestamp: t0.Add(time.Millisecond)},
	}
	if err := store.SaveOffsets(ctx, records, 20); err != nil {
		t.Fatalf("SaveOffsets: %v", err)
	}

	state, err := store.LoadOffsets(ctx, "orders", 0, 1023, time.Hour, 4)
	if err != nil {
		t.Fatalf("LoadOffsets: %v", err)
	}
	if got := state.StoredSeqNr("p1"); got != 3 {
		t.Fatalf("p1 seqNr = %d, want 3", got)
	}
	if got := state.StoredSeqNr("p2"); got != 1 {
		t.Fatalf("p2 seqNr = %d, want 1", got)
	}
}

func TestPebbleStoreManagementRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	st, err := store.ReadManagementState(ctx, "orders")
	if err != nil {
		t.Fatalf("ReadManagementState: %v", err)
	}
	if st.Paused {
		t.Fatalf("expected not paused by default")
	}
	if err := store.SavePaused(ctx, "orders", true); err != nil {
		t.Fatalf("SavePaused: %v", err)
	}
	st, err = store.ReadManagementState(ctx, "orders")
	if err != nil {
		t.Fatalf("ReadManagementState: %v", err)
	}
	if !st.Paused {
		t.Fatalf("expected paused after SavePaused(true)")
	}
}

func TestPebbleStoreManagementSetAndClearOffset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.ManagementSetOffset(ctx, "orders", OffsetRecord{Pid: "p1", SeqNr: 5, Timestamp: t0}); err != nil {
		t.Fatalf("ManagementSetOffset: %v", err)
	}
	rec, ok, err := store.ManagementGetOffset(ctx, "orders", "p1")
	if err != nil || !ok {
		t.Fatalf("ManagementGetOffset: ok=%v err=%v", ok, err)
	}
	if rec.SeqNr != 5 {
		t.Fatalf("expected seqNr 5, got %d", rec.SeqNr)
	}

	if err := store.ManagementClearOffset(ctx, "orders", false); err != ErrClearWhileRunning {
		t.Fatalf("expected ErrClearWhileRunning, got %v", err)
	}
	if err := store.ManagementClearOffset(ctx, "orders", true); err != nil {
		t.Fatalf("ManagementClearOffset: %v", err)
	}
	if _, ok, _ := store.ManagementGetOffset(ctx, "orders", "p1"); ok {
		t.Fatalf("expected offset cleared")
	}
}

func TestPebbleStoreRecordExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expired := t0.Add(-time.Hour)
	if err := store.SaveOffset(ctx, OffsetRecord{ProjectionName: "orders", Slice: 449, Pid: "p1", SeqNr: 1, Timestamp: t0, ExpiresAt: &expired}); err != nil {
		t.Fatalf("SaveOffset: %v", err)
	}
	state, err := store.LoadOffsets(ctx, "orders", 0, 1023, time.Hour, 4)
	if err != nil {
		t.Fatalf("LoadOffsets: %v", err)
	}
	if _, ok := state.Latest("p1"); ok {
		t.Fatalf("expired record should not be loaded into state")
	}
}
