package projection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leviramsey/sliceoffset/internal/config"
	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/offsetstore"
	"github.com/leviramsey/sliceoffset/internal/validation"
	"github.com/leviramsey/sliceoffset/pkg/log"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeProvider delivers a fixed slice of envelopes once, then blocks until
// ctx is canceled. Callers access its replay calls for assertions.
type fakeProvider struct {
	mu           sync.Mutex
	envelopes    []validation.Envelope
	replays      []replayCall
	loadResponse validation.Envelope
}

type replayCall struct {
	pid           string
	from, through uint64
}

func (p *fakeProvider) EventsBySlices(ctx context.Context, minSlice, maxSlice int, resumeFrom func(int) offsetstate.TimestampOffset) (<-chan validation.Envelope, <-chan error) {
	out := make(chan validation.Envelope)
	errc := make(chan error)
	go func() {
		defer close(out)
		for _, e := range p.envelopes {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, errc
}

func (p *fakeProvider) LoadEnvelope(ctx context.Context, pid string, seqNr uint64) (validation.Envelope, error) {
	return p.loadResponse, nil
}

func (p *fakeProvider) TriggerReplay(ctx context.Context, pid string, from, through uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replays = append(p.replays, replayCall{pid: pid, from: from, through: through})
	return nil
}

func (p *fakeProvider) replayCalls() []replayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]replayCall(nil), p.replays...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.OffsetStore.EvictIntervalMillis = 0 // disable the sweeper for deterministic tests
	cfg.AtLeastOnce.SaveOffsetAfterEnvelopes = 1
	cfg.AtLeastOnce.SaveOffsetAfterDurationMillis = 0
	return cfg
}

func noopLogger() log.Logger { return log.NewLogger(log.WithLevel(log.ErrorLevel)) }

func TestOffsetStrategyValidateRejectsAtMostOnceWithRetry(t *testing.T) {
	strategy := OffsetStrategy{Kind: AtMostOnce, Recovery: RecoveryStrategy{Kind: RecoveryRetryAndFail, Retries: 3}}
	if err := strategy.Validate(); err == nil {
		t.Fatalf("expected AtMostOnce+retry to be rejected")
	}
}

func TestOffsetStrategyValidateAcceptsAtMostOnceWithSkip(t *testing.T) {
	strategy := OffsetStrategy{Kind: AtMostOnce, Recovery: RecoveryStrategy{Kind: RecoverySkip}}
	if err := strategy.Validate(); err != nil {
		t.Fatalf("expected AtMostOnce+skip to be valid: %v", err)
	}
}

func TestDriverAtLeastOnceCommitsAcceptedEnvelopes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := offsetstore.NewMemoryStore()
	provider := &fakeProvider{envelopes: []validation.Envelope{
		{Pid: "p1", SeqNr: 1, Timestamp: baseTime, HasEvent: true},
		{Pid: "p1", SeqNr: 2, Timestamp: baseTime.Add(time.Millisecond), HasEvent: true},
	}}

	var handled []uint64
	var mu sync.Mutex
	handler := func(ctx context.Context, envelopes []validation.Envelope) (HandlerResult, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range envelopes {
			handled = append(handled, e.SeqNr)
		}
		return HandlerResult{}, nil
	}

	d, err := NewDriver("orders", 0, 1023, store, provider, handler,
		OffsetStrategy{Kind: AtLeastOnce}, HandlerStrategy{Kind: Single}, testConfig(), noopLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-runErr

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 || handled[0] != 1 || handled[1] != 2 {
		t.Fatalf("expected both envelopes handled in order, got %v", handled)
	}

	rec, ok, err := store.ManagementGetOffset(context.Background(), "orders", "p1")
	if err != nil || !ok {
		t.Fatalf("ManagementGetOffset: ok=%v err=%v", ok, err)
	}
	if rec.SeqNr != 2 {
		t.Fatalf("expected persisted seqNr 2, got %d", rec.SeqNr)
	}
}

func TestDriverTriggersReplayOnBacktrackingGap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := offsetstore.NewMemoryStore()
	provider := &fakeProvider{envelopes: []validation.Envelope{
		{Pid: "p1", SeqNr: 5, Timestamp: baseTime, Origin: validation.Backtracking, HasEvent: true},
	}}

	handler := func(ctx context.Context, envelopes []validation.Envelope) (HandlerResult, error) {
		return HandlerResult{}, nil
	}

	d, err := NewDriver("orders", 0, 1023, store, provider, handler,
		OffsetStrategy{Kind: AtLeastOnce}, HandlerStrategy{Kind: Single}, testConfig(), noopLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-runErr

	calls := provider.replayCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one replay call, got %d", len(calls))
	}
	if calls[0].pid != "p1" || calls[0].from != 1 || calls[0].through != 5 {
		t.Fatalf("unexpected replay call: %+v", calls[0])
	}
}

func TestDriverExactlyOnceCommitsWritesAtomicallyWithOffset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := offsetstore.NewMemoryStore()
	provider := &fakeProvider{envelopes: []validation.Envelope{
		{Pid: "p1", SeqNr: 1, Timestamp: baseTime, HasEvent: true},
	}}

	handler := func(ctx context.Context, envelopes []validation.Envelope) (HandlerResult, error) {
		return HandlerResult{Writes: []WriteItem{{Key: []byte("k"), Value: []byte("v")}}}, nil
	}

	d, err := NewDriver("orders", 0, 1023, store, provider, handler,
		OffsetStrategy{Kind: ExactlyOnce}, HandlerStrategy{Kind: Single}, testConfig(), noopLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-runErr

	if got := store.WriteLog(); len(got) != 1 {
		t.Fatalf("expected 1 write committed alongside the offset, got %d", len(got))
	}
	if _, ok, _ := store.ManagementGetOffset(context.Background(), "orders", "p1"); !ok {
		t.Fatalf("expected offset to be persisted alongside the write")
	}
}

func TestDriverSkipRecoveryAdvancesPastFailingEnvelope(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := offsetstore.NewMemoryStore()
	provider := &fakeProvider{envelopes: []validation.Envelope{
		{Pid: "p1", SeqNr: 1, Timestamp: baseTime, HasEvent: true},
	}}

	handler := func(ctx context.Context, envelopes []validation.Envelope) (HandlerResult, error) {
		return HandlerResult{}, errors.New("boom")
	}

	d, err := NewDriver("orders", 0, 1023, store, provider, handler,
		OffsetStrategy{Kind: AtMostOnce, Recovery: RecoveryStrategy{Kind: RecoverySkip}},
		HandlerStrategy{Kind: Single}, testConfig(), noopLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	err = <-runErr
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Run to end via cancellation, got %v", err)
	}

	if _, ok, _ := store.ManagementGetOffset(context.Background(), "orders", "p1"); !ok {
		t.Fatalf("expected offset to advance past the skipped failure")
	}
}

func TestManagementClearOffsetRequiresPause(t *testing.T) {
	store := offsetstore.NewMemoryStore()
	mgmt := newManagement("orders", store, 0, 0)
	ctx := context.Background()

	if err := store.SaveOffset(ctx, offsetstore.OffsetRecord{ProjectionName: "orders", Pid: "p1", SeqNr: 1, Timestamp: baseTime}); err != nil {
		t.Fatalf("SaveOffset: %v", err)
	}
	if err := mgmt.ClearOffset(ctx); err != offsetstore.ErrClearWhileRunning {
		t.Fatalf("expected ErrClearWhileRunning, got %v", err)
	}
	if err := mgmt.SetPaused(ctx, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if err := mgmt.ClearOffset(ctx); err != nil {
		t.Fatalf("ClearOffset after pause: %v", err)
	}
}
