// Package projection implements the pull-process-commit driver: it reads
// envelopes from a Provider, classifies them against in-memory offset
// state, dispatches accepted ones to a user Handler under the configured
// offset and handler strategies, and persists progress through an
// offsetstore.Store. It restarts with backoff on unrecoverable failures and
// exposes a management surface for inspecting and administering a
// projection's offset out of band.
package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leviramsey/sliceoffset/internal/config"
	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/offsetstore"
	"github.com/leviramsey/sliceoffset/internal/projection/filterexpr"
	"github.com/leviramsey/sliceoffset/internal/validation"
	"github.com/leviramsey/sliceoffset/pkg/log"
)

// Driver runs one projection instance against a fixed slice range.
type Driver struct {
	name               string
	minSlice, maxSlice int

	store    offsetstore.Store
	provider Provider
	handler  Handler
	filter   filterexpr.Filter

	offsetStrategy  OffsetStrategy
	handlerStrategy HandlerStrategy
	backoff         restartBackoff
	cfg             config.Config
	logger          log.Logger
	observer        StatusObserver
	nowFn           func() time.Time

	state     *offsetstate.State
	validator *validation.Validator

	alBuf *atLeastOnceBuffer

	Management *Management
}

// Option configures optional Driver behavior.
type Option func(*Driver)

// WithFilter installs a compiled envelope filter; filtered envelopes still
// advance the offset but never reach the handler.
func WithFilter(f filterexpr.Filter) Option {
	return func(d *Driver) { d.filter = f }
}

// WithStatusObserver installs a callback invoked on every significant
// driver event.
func WithStatusObserver(obs StatusObserver) Option {
	return func(d *Driver) { d.observer = obs }
}

// WithClock overrides the driver's time source; intended for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.nowFn = now }
}

// NewDriver constructs a Driver. It returns an error if offsetStrategy
// fails OffsetStrategy.Validate (the AtMostOnce/retry constraint).
func NewDriver(
	name string,
	minSlice, maxSlice int,
	store offsetstore.Store,
	provider Provider,
	handler Handler,
	offsetStrategy OffsetStrategy,
	handlerStrategy HandlerStrategy,
	cfg config.Config,
	logger log.Logger,
	opts ...Option,
) (*Driver, error) {
	if err := offsetStrategy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}

	d := &Driver{
		name:            name,
		minSlice:        minSlice,
		maxSlice:        maxSlice,
		store:           store,
		provider:        provider,
		handler:         handler,
		offsetStrategy:  offsetStrategy,
		handlerStrategy: handlerStrategy,
		backoff:         newRestartBackoff(cfg.RestartBackoff),
		cfg:             cfg,
		logger:          logger.WithComponent("projection").WithField("projection", name),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Management = newManagement(name, store,
		time.Duration(cfg.Management.OperationTimeoutMillis)*time.Millisecond,
		time.Duration(cfg.Management.AskTimeoutMillis)*time.Millisecond,
	)
	d.alBuf = newAtLeastOnceBuffer(cfg.AtLeastOnce)
	if offsetStrategy.AfterEnvelopes > 0 {
		d.alBuf.afterCount = offsetStrategy.AfterEnvelopes
	}
	if offsetStrategy.AfterDuration > 0 {
		d.alBuf.afterDur = offsetStrategy.AfterDuration
	}
	return d, nil
}

func (d *Driver) now() time.Time {
	if d.nowFn != nil {
		return d.nowFn()
	}
	return time.Now()
}

func (d *Driver) timeWindow() time.Duration {
	return time.Duration(d.cfg.OffsetStore.TimeWindowMillis) * time.Millisecond
}

// Run drives the projection until ctx is canceled or the restart budget is
// exhausted. It blocks for the lifetime of the projection.
func (d *Driver) Run(ctx context.Context) error {
	restarts := 0
	for {
		if err := d.waitWhilePaused(ctx); err != nil {
			return err
		}
		err := d.runOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return errors.Join(ErrStopped, ctx.Err())
		}
		if d.backoff.exceeded(restarts) {
			return fmt.Errorf("projection: restart budget exhausted after %d restarts: %w", restarts, err)
		}
		wait := d.backoff.delay(restarts)
		restarts++
		d.emit(StatusEvent{Kind: EventRestarting, Err: err, Restarts: restarts, RetryWait: wait})
		d.logger.Warn("restarting after failure", log.Err(err), log.Int("restarts", restarts), log.Any("wait", wait.String()))
		select {
		case <-ctx.Done():
			return errors.Join(ErrStopped, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// waitWhilePaused blocks until the projection's persisted pause flag
// clears, polling at the management ask-timeout cadence.
func (d *Driver) waitWhilePaused(ctx context.Context) error {
	poll := time.Duration(d.cfg.Management.AskTimeoutMillis) * time.Millisecond
	if poll <= 0 {
		poll = time.Second
	}
	announced := false
	for {
		st, err := d.store.ReadManagementState(ctx, d.name)
		if err != nil {
			return err
		}
		if !st.Paused {
			if announced {
				d.emit(StatusEvent{Kind: EventResumed})
			}
			return nil
		}
		if !announced {
			d.emit(StatusEvent{Kind: EventPaused})
			announced = true
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrPaused, ctx.Err())
		case <-time.After(poll):
		}
	}
}

func (d *Driver) runOnce(ctx context.Context) (err error) {
	state, err := d.store.LoadOffsets(ctx, d.name, d.minSlice, d.maxSlice, d.timeWindow(), d.cfg.OffsetStore.OffsetSliceReadParallelism)
	if err != nil {
		return fmt.Errorf("projection: load offsets: %w", err)
	}
	d.state = state
	d.validator = validation.New(state)

	sweepInterval := time.Duration(d.cfg.OffsetStore.EvictIntervalMillis) * time.Millisecond
	sweeper := newEvictionSweeper(d, sweepInterval, d.timeWindow(), d.cfg.OffsetStore.KeepNumberOfEntries)
	sweeper.start()
	defer sweeper.stop()

	flusher := newAtLeastOnceFlusher(d)
	flusher.start()
	defer flusher.stop()

	resumeFrom := func(slice int) offsetstate.TimestampOffset {
		off, ok := d.state.OffsetBySlice(slice)
		if !ok {
			return offsetstate.TimestampOffset{}
		}
		return off
	}
	envelopes, errc := d.provider.EventsBySlices(ctx, d.minSlice, d.maxSlice, resumeFrom)

	switch d.handlerStrategy.Kind {
	case Flow:
		return d.runFlow(ctx, envelopes, errc)
	case Grouped:
		return d.runGrouped(ctx, envelopes, errc)
	default:
		return d.runSingle(ctx, envelopes, errc)
	}
}

func (d *Driver) runSingle(ctx context.Context, envelopes <-chan validation.Envelope, errc <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errc:
			if ok && err != nil {
				return err
			}
		case e, ok := <-envelopes:
			if !ok {
				return nil
			}
			if err := d.processOne(ctx, e); err != nil {
				return err
			}
		}
	}
}

// processOne classifies e and, if accepted, dispatches it through the
// configured offset strategy. Duplicates are silently dropped; rejections
// either wait for the live stream to fill the gap or, for a backtracking
// rejection, trigger a replay of the missing range.
func (d *Driver) processOne(ctx context.Context, e validation.Envelope) error {
	slice, class := d.validator.Classify(e)
	switch class {
	case validation.Duplicate:
		d.emit(StatusEvent{Kind: EventEnvelopeDuplicate, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return nil
	case validation.RejectedBacktrackingSeqNr:
		d.emit(StatusEvent{Kind: EventEnvelopeRejected, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return d.triggerReplay(ctx, e)
	case validation.RejectedSeqNr:
		d.emit(StatusEvent{Kind: EventEnvelopeRejected, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return nil
	}

	d.emit(StatusEvent{Kind: EventEnvelopeAccepted, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})

	if !e.HasEvent && !e.Filtered {
		hydrated, err := d.provider.LoadEnvelope(ctx, e.Pid, e.SeqNr)
		if err != nil {
			return fmt.Errorf("projection: load envelope pid=%s seqNr=%d: %w", e.Pid, e.SeqNr, err)
		}
		hydrated.Origin = e.Origin
		e = hydrated
	}

	rec := offsetstate.Record{Slice: slice, Pid: e.Pid, SeqNr: e.SeqNr, Timestamp: e.Timestamp}
	runHandler := !e.Filtered && d.filter.Eval(e)

	return d.commitOne(ctx, e, rec, runHandler)
}

func (d *Driver) triggerReplay(ctx context.Context, e validation.Envelope) error {
	trig, ok := d.provider.(ReplayTrigger)
	if !ok {
		return nil
	}
	from := d.state.StoredSeqNr(e.Pid) + 1
	d.emit(StatusEvent{Kind: EventReplayTriggered, Pid: e.Pid, SeqNr: e.SeqNr})
	d.logger.Info("triggering replay", log.Str("pid", e.Pid), log.Uint64("fromSeqNr", from), log.Uint64("throughSeqNr", e.SeqNr))
	if err := trig.TriggerReplay(ctx, e.Pid, from, e.SeqNr); err != nil {
		return fmt.Errorf("projection: trigger replay pid=%s: %w", e.Pid, err)
	}
	return nil
}

// handlerFailed reports a handler error to the status observer before
// wrapping it for the caller, so every handler failure is observable
// regardless of which OffsetStrategy branch produced it.
func (d *Driver) handlerFailed(e validation.Envelope, rec offsetstate.Record, err error) error {
	d.emit(StatusEvent{Kind: EventHandlerError, Pid: e.Pid, SeqNr: e.SeqNr, Slice: rec.Slice, Err: err})
	return &HandlerError{Pid: e.Pid, SeqNr: e.SeqNr, Err: err}
}

// commitOne runs the handler (if runHandler) and advances the offset for a
// single envelope, per the configured OffsetStrategy.
func (d *Driver) commitOne(ctx context.Context, e validation.Envelope, rec offsetstate.Record, runHandler bool) error {
	call := func() (HandlerResult, error) {
		if !runHandler {
			return HandlerResult{}, nil
		}
		return d.handler(ctx, []validation.Envelope{e})
	}

	switch d.offsetStrategy.Kind {
	case AtMostOnce:
		d.state.Add(rec)
		if err := d.store.SaveOffset(ctx, d.toOffsetRecord(e, rec.Slice)); err != nil {
			return fmt.Errorf("projection: save offset: %w", err)
		}
		_, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call)
		if err != nil {
			return d.handlerFailed(e, rec, err)
		}
		return nil

	case ExactlyOnce:
		d.validator.MarkInFlight(e.Pid, e.SeqNr)
		res, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call)
		if err != nil {
			return d.handlerFailed(e, rec, err)
		}
		writes := toStoreWrites(res.Writes)
		if err := d.store.TransactSaveOffset(ctx, writes, d.toOffsetRecord(e, rec.Slice)); err != nil {
			return fmt.Errorf("projection: transact save offset: %w", err)
		}
		d.state.Add(rec)
		d.validator.ClearInFlight(e.Pid, e.SeqNr)
		d.emit(StatusEvent{Kind: EventOffsetCommitted, Pid: e.Pid, SeqNr: e.SeqNr, Slice: rec.Slice})
		return nil

	case OffsetStoredByHandler:
		_, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call)
		if err != nil {
			return d.handlerFailed(e, rec, err)
		}
		d.state.Add(rec)
		return nil

	default: // AtLeastOnce
		d.validator.MarkInFlight(e.Pid, e.SeqNr)
		_, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call)
		if err != nil {
			return d.handlerFailed(e, rec, err)
		}
		d.state.Add(rec)
		d.validator.ClearInFlight(e.Pid, e.SeqNr)
		d.alBuf.add(d.toOffsetRecord(e, rec.Slice))
		return d.maybeFlushAtLeastOnce(ctx)
	}
}

func (d *Driver) maybeFlushAtLeastOnce(ctx context.Context) error {
	pending := d.alBuf.takeIfDue(d.now())
	if len(pending) == 0 {
		return nil
	}
	if err := d.store.SaveOffsets(ctx, pending, d.cfg.OffsetStore.OffsetBatchSize); err != nil {
		return fmt.Errorf("projection: flush offsets: %w", err)
	}
	d.emit(StatusEvent{Kind: EventOffsetCommitted})
	return nil
}

func (d *Driver) toOffsetRecord(e validation.Envelope, slice int) offsetstore.OffsetRecord {
	r := offsetstore.OffsetRecord{ProjectionName: d.name, Slice: slice, Pid: e.Pid, SeqNr: e.SeqNr, Timestamp: e.Timestamp}
	if ttl := d.cfg.TimeToLive.OffsetTTLMillis(d.name); ttl > 0 {
		exp := e.Timestamp.Add(time.Duration(ttl) * time.Millisecond)
		r.ExpiresAt = &exp
	}
	return r
}

func toStoreWrites(items []WriteItem) []offsetstore.WriteItem {
	out := make([]offsetstore.WriteItem, len(items))
	for i, it := range items {
		out[i] = offsetstore.WriteItem{Key: it.Key, Value: it.Value}
	}
	return out
}

// atLeastOnceBuffer accumulates pending offset records between commits,
// flushing when either threshold configured for the at-least-once offset
// strategy is reached.
type atLeastOnceBuffer struct {
	mu         sync.Mutex
	pending    []offsetstore.OffsetRecord
	afterCount int
	afterDur   time.Duration
	lastFlush  time.Time
}

func newAtLeastOnceBuffer(cfg config.AtLeastOnceConfig) *atLeastOnceBuffer {
	return &atLeastOnceBuffer{
		afterCount: cfg.SaveOffsetAfterEnvelopes,
		afterDur:   time.Duration(cfg.SaveOffsetAfterDurationMillis) * time.Millisecond,
		lastFlush:  time.Now(),
	}
}

func (b *atLeastOnceBuffer) add(r offsetstore.OffsetRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, r)
}

func (b *atLeastOnceBuffer) takeIfDue(now time.Time) []offsetstore.OffsetRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	due := len(b.pending) >= b.afterCount && b.afterCount > 0
	due = due || (b.afterDur > 0 && now.Sub(b.lastFlush) >= b.afterDur && len(b.pending) > 0)
	if !due {
		return nil
	}
	out := b.pending
	b.pending = nil
	b.lastFlush = now
	return out
}

// atLeastOnceFlusher flushes the at-least-once buffer on a fixed cadence so
// a pending batch doesn't wait indefinitely on a quiescent stream.
type atLeastOnceFlusher struct {
	d      *Driver
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newAtLeastOnceFlusher(d *Driver) *atLeastOnceFlusher {
	ctx, cancel := context.WithCancel(context.Background())
	return &atLeastOnceFlusher{d: d, ctx: ctx, cancel: cancel}
}

func (f *atLeastOnceFlusher) start() {
	if f.d.offsetStrategy.Kind != AtLeastOnce || f.d.alBuf.afterDur <= 0 {
		return
	}
	f.wg.Add(1)
	go f.run()
}

// stop cancels the periodic flush goroutine and waits for it to exit. Any
// offsets still sitting in the buffer are left there: at-least-once
// semantics tolerate re-observing them after a restart, and force-flushing
// here would turn a cooperative shutdown into a call that can block on an
// unavailable store.
func (f *atLeastOnceFlusher) stop() {
	f.cancel()
	f.wg.Wait()
}

func (f *atLeastOnceFlusher) run() {
	defer f.wg.Done()
	interval := f.d.alBuf.afterDur
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			if err := f.d.maybeFlushAtLeastOnce(f.ctx); err != nil {
				f.d.logger.Error("periodic offset flush failed", log.Err(err))
			}
		}
	}
}
