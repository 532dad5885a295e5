package offsetstore

import (
	"context"
	"testing"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStoreDuplicateDetectionAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.SaveOffset(ctx, OffsetRecord{ProjectionName: "orders", Slice: 449, Pid: "p1", SeqNr: 3, Timestamp: t0}); err != nil {
		t.Fatalf("SaveOffset: %v", err)
	}

	state, err := store.LoadOffsets(ctx, "orders", 0, 1023, time.Hour, 4)
	if err != nil {
		t.Fatalf("LoadOffsets: %v", err)
	}
	if !state.IsDuplicate(offsetstate.Record{Pid: "p1", SeqNr: 3}) {
		t.Fatalf("expected redelivered (p1,3) to be a duplicate after restart")
	}
}

func TestMemoryStoreManagementClearRequiresPause(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SaveOffset(ctx, OffsetRecord{ProjectionName: "orders", Slice: 449, Pid: "p1", SeqNr: 3, Timestamp: t0})

	if err := store.ManagementClearOffset(ctx, "orders", false); err != ErrClearWhileRunning {
		t.Fatalf("expected ErrClearWhileRunning, got %v", err)
	}
	if err := store.ManagementClearOffset(ctx, "orders", true); err != nil {
		t.Fatalf("clear while paused: %v", err)
	}
	if _, ok, _ := store.ManagementGetOffset(ctx, "orders", "p1"); ok {
		t.Fatalf("expected offset to be cleared")
	}
}

func TestMemoryStoreTransactSaveOffsetsCommitsWritesAndOffsetsTogether(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	writes := []WriteItem{{Key: []byte("sink/order-42"), Value: []byte("shipped")}}
	records := []OffsetRecord{{ProjectionName: "orders", Slice: 449, Pid: "p1", SeqNr: 1, Timestamp: t0}}
	if err := store.TransactSaveOffsets(ctx, writes, records); err != nil {
		t.Fatalf("TransactSaveOffsets: %v", err)
	}
	if got := store.WriteLog(); len(got) != 1 {
		t.Fatalf("expected 1 write logged, got %d", len(got))
	}
	if _, ok, _ := store.ManagementGetOffset(ctx, "orders", "p1"); !ok {
		t.Fatalf("expected offset to be persisted alongside the write")
	}
}
