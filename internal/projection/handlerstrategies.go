package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/offsetstore"
	"github.com/leviramsey/sliceoffset/internal/slicing"
	"github.com/leviramsey/sliceoffset/internal/validation"
)

// runGrouped batches accepted, unfiltered envelopes and invokes the handler
// once per batch, flushing when either the envelope count or the elapsed
// duration threshold is reached. Filtered envelopes bypass the group
// entirely and commit through the single-envelope path, same as Single.
func (d *Driver) runGrouped(ctx context.Context, envelopes <-chan validation.Envelope, errc <-chan error) error {
	afterCount := d.handlerStrategy.AfterEnvelopes
	afterDur := d.handlerStrategy.AfterDuration
	if afterDur <= 0 {
		afterDur = 500 * time.Millisecond
	}

	var batch []validation.Envelope
	var records []offsetstate.Record

	ticker := time.NewTicker(afterDur)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		b, r := batch, records
		batch, records = nil, nil
		return d.commitBatch(ctx, b, r)
	}

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		case err, ok := <-errc:
			if ok && err != nil {
				_ = flush()
				return err
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case e, ok := <-envelopes:
			if !ok {
				return flush()
			}
			done, err := d.stageGrouped(ctx, e, &batch, &records)
			if err != nil {
				return err
			}
			if done && afterCount > 0 && len(batch) >= afterCount {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// stageGrouped classifies e and either drops it (duplicate or rejected; a
// backtracking rejection triggers a replay), commits it immediately
// (filtered), or appends it to the pending group batch. done reports
// whether e was appended to the batch.
func (d *Driver) stageGrouped(ctx context.Context, e validation.Envelope, batch *[]validation.Envelope, records *[]offsetstate.Record) (bool, error) {
	slice, class := d.validator.Classify(e)
	switch class {
	case validation.Duplicate:
		d.emit(StatusEvent{Kind: EventEnvelopeDuplicate, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return false, nil
	case validation.RejectedBacktrackingSeqNr:
		d.emit(StatusEvent{Kind: EventEnvelopeRejected, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return false, d.triggerReplay(ctx, e)
	case validation.RejectedSeqNr:
		d.emit(StatusEvent{Kind: EventEnvelopeRejected, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})
		return false, nil
	}

	d.emit(StatusEvent{Kind: EventEnvelopeAccepted, Pid: e.Pid, SeqNr: e.SeqNr, Slice: slice})

	if !e.HasEvent && !e.Filtered {
		hydrated, err := d.provider.LoadEnvelope(ctx, e.Pid, e.SeqNr)
		if err != nil {
			return false, fmt.Errorf("projection: load envelope pid=%s seqNr=%d: %w", e.Pid, e.SeqNr, err)
		}
		hydrated.Origin = e.Origin
		e = hydrated
	}

	rec := offsetstate.Record{Slice: slice, Pid: e.Pid, SeqNr: e.SeqNr, Timestamp: e.Timestamp}
	if e.Filtered || !d.filter.Eval(e) {
		return false, d.commitOne(ctx, e, rec, false)
	}

	*batch = append(*batch, e)
	*records = append(*records, rec)
	return true, nil
}

// commitBatch runs the handler once for the whole batch and advances every
// envelope's offset per the configured OffsetStrategy.
func (d *Driver) commitBatch(ctx context.Context, envelopes []validation.Envelope, records []offsetstate.Record) error {
	call := func() (HandlerResult, error) { return d.handler(ctx, envelopes) }
	handlerErr := func(err error) error {
		he := &HandlerError{Err: err}
		var slice int
		if len(envelopes) > 0 {
			he.Pid, he.SeqNr = envelopes[0].Pid, envelopes[0].SeqNr
		}
		if len(records) > 0 {
			slice = records[0].Slice
		}
		d.emit(StatusEvent{Kind: EventHandlerError, Pid: he.Pid, SeqNr: he.SeqNr, Slice: slice, Err: err})
		return he
	}

	switch d.offsetStrategy.Kind {
	case AtMostOnce:
		for i, r := range records {
			d.state.Add(r)
			if err := d.store.SaveOffset(ctx, d.toOffsetRecord(envelopes[i], r.Slice)); err != nil {
				return fmt.Errorf("projection: save offset: %w", err)
			}
		}
		if _, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call); err != nil {
			return handlerErr(err)
		}
		return nil

	case ExactlyOnce:
		res, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call)
		if err != nil {
			return handlerErr(err)
		}
		storeRecords := make([]offsetstore.OffsetRecord, len(records))
		for i, r := range records {
			storeRecords[i] = d.toOffsetRecord(envelopes[i], r.Slice)
		}
		if err := d.store.TransactSaveOffsets(ctx, toStoreWrites(res.Writes), storeRecords); err != nil {
			return fmt.Errorf("projection: transact save offsets: %w", err)
		}
		d.state.Add(records...)
		d.emit(StatusEvent{Kind: EventOffsetCommitted})
		return nil

	case OffsetStoredByHandler:
		if _, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call); err != nil {
			return handlerErr(err)
		}
		d.state.Add(records...)
		return nil

	default: // AtLeastOnce
		if _, err, _ := runHandlerWithRecovery(ctx, d.offsetStrategy.Recovery, call); err != nil {
			return handlerErr(err)
		}
		d.state.Add(records...)
		for i, r := range records {
			d.alBuf.add(d.toOffsetRecord(envelopes[i], r.Slice))
		}
		return d.maybeFlushAtLeastOnce(ctx)
	}
}

// runFlow partitions envelopes across a fixed worker pool keyed by slice, so
// a pid (which always hashes to the same slice) is always handled by the
// same worker and therefore never processed out of order, while independent
// slices process concurrently.
func (d *Driver) runFlow(ctx context.Context, envelopes <-chan validation.Envelope, errc <-chan error) error {
	parallelism := d.handlerStrategy.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}

	workers := make([]chan validation.Envelope, parallelism)
	for i := range workers {
		workers[i] = make(chan validation.Envelope, 64)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, parallelism+1)
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func(ch <-chan validation.Envelope) {
			defer wg.Done()
			for e := range ch {
				if err := d.processOne(ctx, e); err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
			}
		}(workers[i])
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errc:
				if ok && err != nil {
					select {
					case errCh <- err:
					default:
					}
				}
				return
			case e, ok := <-envelopes:
				if !ok {
					return
				}
				idx := slicing.Slice(e.Pid) % parallelism
				select {
				case workers[idx] <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-dispatchDone:
	case err := <-errCh:
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
		return err
	}

	for _, ch := range workers {
		close(ch)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return ctx.Err()
}
