// Package slicing computes the deterministic mapping from a persistence id
// to one of a fixed number of parallel shards ("slices").
package slicing

// NumSlices is the fixed total number of slices a persistence id can hash
// into. A projection owns a contiguous sub-range [minSlice, maxSlice] of
// this space.
const NumSlices = 1024

// Slice returns the slice a persistence id hashes into, in [0, NumSlices).
//
// The hash is Java's String.hashCode(): h = 31*h + c for each UTF-16 code
// unit c, accumulated in a 32-bit signed integer. This exact polynomial is
// required so that every implementation of this scheme assigns the same pid
// to the same slice, independent of language or process.
func Slice(pid string) int {
	h := javaStringHash(pid)
	if h < 0 {
		h = -h
	}
	return int(h % NumSlices)
}

// InRange reports whether slice s falls within [minSlice, maxSlice] inclusive.
func InRange(s, minSlice, maxSlice int) bool {
	return s >= minSlice && s <= maxSlice
}

func javaStringHash(s string) int32 {
	var h int32
	for _, r := range utf16Units(s) {
		h = 31*h + int32(r)
	}
	return h
}

// utf16Units decodes s into UTF-16 code units, matching the representation
// Java's String.hashCode walks. Go strings are UTF-8; runes outside the
// basic multilingual plane are split into a surrogate pair, as Java would
// store them internally.
func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		units = append(units, hi, lo)
	}
	return units
}
