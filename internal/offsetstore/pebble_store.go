package offsetstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
	"github.com/leviramsey/sliceoffset/internal/slicing"
	pebblestore "github.com/leviramsey/sliceoffset/internal/storage/pebble"
)

// PebbleStore persists offsets and management state in a Pebble keyspace,
// following the key layout and CRC-checked record encoding used by the
// event log's own commit cursor.
type PebbleStore struct {
	db *pebblestore.DB
}

// NewPebbleStore wraps an already-opened Pebble database.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

var _ Store = (*PebbleStore)(nil)

func (p *PebbleStore) LoadOffsets(ctx context.Context, projectionName string, minSlice, maxSlice int, timeWindow time.Duration, parallelism int) (*offsetstate.State, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	state := offsetstate.New()

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for slice := minSlice; slice <= maxSlice; slice++ {
		slice := slice
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			records, err := p.loadSlice(projectionName, slice)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			recs := make([]offsetstate.Record, 0, len(records))
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
				recs = append(recs, offsetstate.Record{Slice: r.Slice, Pid: r.Pid, SeqNr: r.SeqNr, Timestamp: r.Timestamp})
			}
			mu.Lock()
			state.Add(recs...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return state, nil
}

func (p *PebbleStore) loadSlice(projectionName string, slice int) ([]OffsetRecord, error) {
	prefix := sliceOffsetPrefix(projectionName, slice)
	it, err := p.db.ScanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []OffsetRecord
	now := time.Now()
	for valid := it.First(); valid; valid = it.Next() {
		pid := string(it.Key()[len(prefix):])
		seqNr, ts, expiresAt, ok := decodeOffsetValue(it.Value())
		if !ok {
			continue
		}
		if expiresAt != nil && expiresAt.Before(now) {
			continue
		}
		out = append(out, OffsetRecord{ProjectionName: projectionName, Slice: slice, Pid: pid, SeqNr: seqNr, Timestamp: ts, ExpiresAt: expiresAt})
	}
	return out, it.Error()
}

func (p *PebbleStore) SaveOffset(ctx context.Context, r OffsetRecord) error {
	return p.db.Set(keyOffset(r.ProjectionName, r.Slice, r.Pid), encodeOffsetValue(r.SeqNr, r.Timestamp, r.ExpiresAt))
}

func (p *PebbleStore) SaveOffsets(ctx context.Context, records []OffsetRecord, batchSize int) error {
	for _, batch := range chunk(records, batchSize) {
		if err := p.writeBatch(ctx, nil, batch); err != nil {
			return fmt.Errorf("offsetstore: save batch: %w", err)
		}
	}
	return nil
}

func (p *PebbleStore) TransactSaveOffset(ctx context.Context, writes []WriteItem, r OffsetRecord) error {
	return p.writeBatch(ctx, writes, []OffsetRecord{r})
}

func (p *PebbleStore) TransactSaveOffsets(ctx context.Context, writes []WriteItem, records []OffsetRecord) error {
	return p.writeBatch(ctx, writes, records)
}

func (p *PebbleStore) writeBatch(ctx context.Context, writes []WriteItem, records []OffsetRecord) error {
	b := p.db.NewBatch()
	defer b.Close()
	for _, w := range writes {
		if err := b.Set(w.Key, w.Value, nil); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := b.Set(keyOffset(r.ProjectionName, r.Slice, r.Pid), encodeOffsetValue(r.SeqNr, r.Timestamp, r.ExpiresAt), nil); err != nil {
			return err
		}
	}
	return p.db.CommitBatch(ctx, b)
}

func (p *PebbleStore) ReadManagementState(ctx context.Context, projectionName string) (ManagementState, error) {
	v, err := p.db.Get(keyManagement(projectionName))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ManagementState{}, nil
		}
		return ManagementState{}, err
	}
	return decodeManagement(v), nil
}

func (p *PebbleStore) SavePaused(ctx context.Context, projectionName string, paused bool) error {
	return p.db.Set(keyManagement(projectionName), encodeManagement(ManagementState{Paused: paused}))
}

func (p *PebbleStore) ManagementGetOffset(ctx context.Context, projectionName string, pid string) (OffsetRecord, bool, error) {
	slice := slicing.Slice(pid)
	v, err := p.db.Get(keyOffset(projectionName, slice, pid))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return OffsetRecord{}, false, nil
		}
		return OffsetRecord{}, false, err
	}
	seqNr, ts, expiresAt, ok := decodeOffsetValue(v)
	if !ok {
		return OffsetRecord{}, false, fmt.Errorf("offsetstore: corrupt record for pid %q", pid)
	}
	return OffsetRecord{ProjectionName: projectionName, Slice: slice, Pid: pid, SeqNr: seqNr, Timestamp: ts, ExpiresAt: expiresAt}, true, nil
}

func (p *PebbleStore) ManagementSetOffset(ctx context.Context, projectionName string, r OffsetRecord) error {
	r.ProjectionName = projectionName
	r.Slice = slicing.Slice(r.Pid)
	return p.SaveOffset(ctx, r)
}

func (p *PebbleStore) ManagementClearOffset(ctx context.Context, projectionName string, paused bool) error {
	if !paused {
		return ErrClearWhileRunning
	}
	prefix := projectionPrefix(projectionName)
	it, err := p.db.ScanPrefix(prefix)
	if err != nil {
		return err
	}
	var keys [][]byte
	for valid := it.First(); valid; valid = it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Close(); err != nil {
		return err
	}
	b := p.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	return p.db.CommitBatch(ctx, b)
}
