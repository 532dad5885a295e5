package projection

import (
	"fmt"
	"testing"
	"time"

	"github.com/leviramsey/sliceoffset/internal/offsetstate"
)

func driverForEvictionTest(recordCount int) *Driver {
	state := offsetstate.New()
	for i := 0; i < recordCount; i++ {
		pid := fmt.Sprintf("p%d", i)
		state.Add(offsetstate.Record{Slice: 0, Pid: pid, SeqNr: 1, Timestamp: baseTime.Add(time.Duration(i) * time.Second)})
	}
	return &Driver{name: "orders", state: state, logger: noopLogger()}
}

func TestEvictionSweepSkipsBelowKeepThreshold(t *testing.T) {
	d := driverForEvictionTest(5)
	s := newEvictionSweeper(d, time.Hour, time.Nanosecond, 10)
	s.sweep()
	if got := d.state.Len(); got != 5 {
		t.Fatalf("expected sweep to no-op below the keep threshold, len=%d", got)
	}
}

func TestEvictionSweepRunsAboveKeepThreshold(t *testing.T) {
	d := driverForEvictionTest(5)
	s := newEvictionSweeper(d, time.Hour, time.Nanosecond, 2)
	s.sweep()
	if got := d.state.Len(); got >= 5 {
		t.Fatalf("expected sweep to evict once above the keep threshold, len=%d", got)
	}
}

func TestEvictionSweepUnboundedWhenKeepThresholdIsZero(t *testing.T) {
	d := driverForEvictionTest(5)
	s := newEvictionSweeper(d, time.Hour, time.Nanosecond, 0)
	s.sweep()
	if got := d.state.Len(); got >= 5 {
		t.Fatalf("expected sweep to run when keepNumberOfEntries is unset, len=%d", got)
	}
}
