package offsetstate

import "time"

// Record is the most recently observed event for a persistence id.
type Record struct {
	Slice     int
	Pid       string
	SeqNr     uint64
	Timestamp time.Time
}

// TimestampOffset is a slice's resume point: every event with a timestamp
// strictly before Timestamp has been fully observed; Seen enumerates the
// pids observed at exactly Timestamp, so those specific (pid, seqNr) pairs
// can be recognized as duplicates across a restart.
type TimestampOffset struct {
	Timestamp time.Time
	Seen      map[string]uint64
}
