package projection

import (
	"context"
	"testing"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstore"
)

// flakyStore fails ManagementSetOffset by blocking past the caller's
// context deadline for the first failAttempts calls (or forever, if
// failAttempts is negative), then succeeds on every later call.
type flakyStore struct {
	*offsetstore.MemoryStore
	failAttempts int
	attempts     int
}

func (f *flakyStore) ManagementSetOffset(ctx context.Context, projectionName string, r offsetstore.OffsetRecord) error {
	f.attempts++
	if f.failAttempts < 0 || f.attempts <= f.failAttempts {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.MemoryStore.ManagementSetOffset(ctx, projectionName, r)
}

func TestManagementRetriesWithinOperationBudgetAfterAskTimeout(t *testing.T) {
	store := &flakyStore{MemoryStore: offsetstore.NewMemoryStore(), failAttempts: 1}
	mgmt := newManagement("orders", store, time.Second, 5*time.Millisecond)

	if err := mgmt.SetOffset(context.Background(), "p1", 7, baseTime); err != nil {
		t.Fatalf("expected a retried call to succeed, got %v", err)
	}
	if store.attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", store.attempts)
	}

	rec, ok, err := store.ManagementGetOffset(context.Background(), "orders", "p1")
	if err != nil || !ok {
		t.Fatalf("expected the retried set to have persisted, ok=%v err=%v", ok, err)
	}
	if rec.SeqNr != 7 {
		t.Fatalf("expected seqNr 7, got %d", rec.SeqNr)
	}
}

func TestManagementGivesUpOnceOperationBudgetExpires(t *testing.T) {
	// Never succeeds: every attempt blocks past its own ask timeout.
	store := &flakyStore{MemoryStore: offsetstore.NewMemoryStore(), failAttempts: -1}
	mgmt := newManagement("orders", store, 20*time.Millisecond, 5*time.Millisecond)

	err := mgmt.SetOffset(context.Background(), "p1", 7, baseTime)
	if err == nil {
		t.Fatalf("expected the operation budget to eventually expire")
	}
}
