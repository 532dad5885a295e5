package projection

import (
	"context"
	"sync"
	"time"

	"github.com/leviramsey/sliceoffset/pkg/log"
)

// evictionSweeper periodically trims each in-memory slice's record history
// back to its retention window, bounding memory growth for
// high-cardinality pid spaces.
type evictionSweeper struct {
	d                   *Driver
	interval            time.Duration
	window              time.Duration
	keepNumberOfEntries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newEvictionSweeper(d *Driver, interval, window time.Duration, keepNumberOfEntries int) *evictionSweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &evictionSweeper{d: d, interval: interval, window: window, keepNumberOfEntries: keepNumberOfEntries, ctx: ctx, cancel: cancel}
}

func (s *evictionSweeper) start() {
	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.run()
}

func (s *evictionSweeper) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *evictionSweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *evictionSweeper) sweep() {
	before := s.d.state.Len()
	if s.keepNumberOfEntries > 0 && before <= s.keepNumberOfEntries {
		return
	}
	for _, slice := range s.d.state.Slices() {
		s.d.state.Evict(slice, s.window)
	}
	after := s.d.state.Len()
	if before != after {
		s.d.logger.Debug("projection: eviction sweep",
			log.Str("projection", s.d.name),
			log.Int("evicted", before-after),
		)
	}
}
