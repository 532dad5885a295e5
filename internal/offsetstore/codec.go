package offsetstore

import (
	"encoding/binary"
	"hash/crc32"
	"time"
)

// Record encoding: seqNr(be8) | timestampUnixNano(be8) | hasExpiry(1) |
// expiresAtUnixNano(be8, present iff hasExpiry) | crc32c(everything above).
//
// The trailing checksum catches truncated writes from a crashed process;
// decodeOffsetValue refuses to return a record whose checksum doesn't match.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeOffsetValue(seqNr uint64, ts time.Time, expiresAt *time.Time) []byte {
	size := 8 + 8 + 1
	if expiresAt != nil {
		size += 8
	}
	out := make([]byte, size, size+4)
	binary.BigEndian.PutUint64(out[0:8], seqNr)
	binary.BigEndian.PutUint64(out[8:16], uint64(ts.UnixNano()))
	if expiresAt != nil {
		out[16] = 1
		binary.BigEndian.PutUint64(out[17:25], uint64(expiresAt.UnixNano()))
	} else {
		out[16] = 0
	}
	crc := crc32.Checksum(out, castagnoli)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

func decodeOffsetValue(b []byte) (seqNr uint64, ts time.Time, expiresAt *time.Time, ok bool) {
	if len(b) < 17+4 {
		return 0, time.Time{}, nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return 0, time.Time{}, nil, false
	}
	seqNr = binary.BigEndian.Uint64(body[0:8])
	ts = time.Unix(0, int64(binary.BigEndian.Uint64(body[8:16]))).UTC()
	if body[16] == 1 {
		if len(body) < 25 {
			return 0, time.Time{}, nil, false
		}
		t := time.Unix(0, int64(binary.BigEndian.Uint64(body[17:25]))).UTC()
		expiresAt = &t
	}
	return seqNr, ts, expiresAt, true
}

func encodeManagement(m ManagementState) []byte {
	if m.Paused {
		return []byte{1}
	}
	return []byte{0}
}

func decodeManagement(b []byte) ManagementState {
	if len(b) == 0 {
		return ManagementState{}
	}
	return ManagementState{Paused: b[0] == 1}
}
