// Package offsetstate holds the in-memory offset state for a single
// projection instance: the latest record observed per persistence id, a
// per-slice index used for resume-point derivation and eviction, and the
// projection's latest observed timestamp.
package offsetstate

import (
	"sort"
	"sync"
	"time"
)

// State is the per-projection-instance in-memory offset tracker described by
// the data model: byPid for O(1) duplicate lookup, bySliceSorted for
// eviction and resume-point derivation, and latestTimestamp as the
// high-water mark across all slices.
//
// State is safe for concurrent use: besides the driver's pull loop, the
// eviction sweeper and, under the Flow handler strategy, the per-partition
// workers call it from their own goroutines.
type State struct {
	mu              sync.RWMutex
	byPid           map[string]Record
	bySliceSorted   map[int][]Record
	latestTimestamp time.Time
}

// New returns an empty State.
func New() *State {
	return &State{
		byPid:         make(map[string]Record),
		bySliceSorted: make(map[int][]Record),
	}
}

// less orders records by (timestamp asc, seqNr asc, pid asc), matching the
// ordering bySliceSorted maintains.
func less(a, b Record) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.SeqNr != b.SeqNr {
		return a.SeqNr < b.SeqNr
	}
	return a.Pid < b.Pid
}

// Add incorporates the given records into the state. Each record
// unconditionally replaces any prior record for the same pid (the caller,
// the validator, has already established ordering) and latestTimestamp
// advances to the max of its previous value and every incoming timestamp.
// The order in which records are supplied does not affect the resulting
// state.
func (s *State) Add(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.addLocked(r)
	}
}

func (s *State) addLocked(r Record) {
	if prior, ok := s.byPid[r.Pid]; ok {
		s.removeFromSliceLocked(prior)
	}
	s.byPid[r.Pid] = r
	list := s.bySliceSorted[r.Slice]
	idx := sort.Search(len(list), func(i int) bool { return !less(list[i], r) })
	list = append(list, Record{})
	copy(list[idx+1:], list[idx:])
	list[idx] = r
	s.bySliceSorted[r.Slice] = list
	if r.Timestamp.After(s.latestTimestamp) {
		s.latestTimestamp = r.Timestamp
	}
}

func (s *State) removeFromSliceLocked(r Record) {
	list := s.bySliceSorted[r.Slice]
	for i, existing := range list {
		if existing.Pid == r.Pid {
			s.bySliceSorted[r.Slice] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Evict drops records from the given slice whose timestamp is older than
// latestTimestamp-timeWindow, except that the slice's single latest record
// (by sort order) is always retained, so every slice that has ever accepted
// an event keeps a valid resume point. Records dropped from bySliceSorted
// are also dropped from byPid. Other slices are untouched.
func (s *State) Evict(slice int, timeWindow time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.bySliceSorted[slice]
	if len(list) <= 1 {
		return
	}
	cutoff := s.latestTimestamp.Add(-timeWindow)
	keepFrom := len(list) - 1
	for i := 0; i < len(list)-1; i++ {
		if !list[i].Timestamp.Before(cutoff) {
			keepFrom = i
			break
		}
	}
	for _, dropped := range list[:keepFrom] {
		delete(s.byPid, dropped.Pid)
	}
	s.bySliceSorted[slice] = append([]Record(nil), list[keepFrom:]...)
}

// IsDuplicate reports whether r.Pid has already been recorded with a seqNr
// greater than or equal to r.SeqNr.
func (s *State) IsDuplicate(r Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prev, ok := s.byPid[r.Pid]
	return ok && prev.SeqNr >= r.SeqNr
}

// Latest returns the current record for pid, if any.
func (s *State) Latest(pid string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byPid[pid]
	return r, ok
}

// StoredSeqNr returns the seqNr recorded for pid, or 0 if pid has never
// been recorded.
func (s *State) StoredSeqNr(pid string) uint64 {
	r, ok := s.Latest(pid)
	if !ok {
		return 0
	}
	return r.SeqNr
}

// LatestTimestamp returns the maximum timestamp observed across all slices.
func (s *State) LatestTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestTimestamp
}

// OffsetBySlice derives the slice's resume point from the tail of its
// sorted index: the timestamp of the last record, and the set of pids whose
// record shares that timestamp. The second return value is false if the
// slice has never held a record.
func (s *State) OffsetBySlice(slice int) (TimestampOffset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.bySliceSorted[slice]
	if len(list) == 0 {
		return TimestampOffset{}, false
	}
	last := list[len(list)-1]
	seen := map[string]uint64{}
	for i := len(list) - 1; i >= 0 && list[i].Timestamp.Equal(last.Timestamp); i-- {
		seen[list[i].Pid] = list[i].SeqNr
	}
	return TimestampOffset{Timestamp: last.Timestamp, Seen: seen}, true
}

// Slices returns the set of slices that currently hold at least one record.
func (s *State) Slices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.bySliceSorted))
	for slice, list := range s.bySliceSorted {
		if len(list) > 0 {
			out = append(out, slice)
		}
	}
	sort.Ints(out)
	return out
}

// Len returns the total number of records held across all slices, used by
// the driver to decide when an eviction sweep is due.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPid)
}
