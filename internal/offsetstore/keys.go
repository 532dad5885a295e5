package offsetstore

import "encoding/binary"

// Keyspace helpers for the Pebble-backed store.
//
// Layout (byte-wise, lexicographically sortable):
// - proj/{name}/slice/{slice_be2}/pid/{pid}   -> encoded OffsetRecord
// - proj/{name}/mgmt                          -> encoded ManagementState

var (
	projPrefix = []byte("proj/")
	sliceSeg   = []byte("/slice/")
	pidSeg     = []byte("/pid/")
	mgmtSuffix = []byte("/mgmt")
)

func appendBE2(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// keyOffset builds the offset-record key for one pid within one slice of a
// named projection.
func keyOffset(projectionName string, slice int, pid string) []byte {
	k := make([]byte, 0, len(projectionName)+len(pid)+32)
	k = append(k, projPrefix...)
	k = append(k, projectionName...)
	k = append(k, sliceSeg...)
	k = appendBE2(k, uint16(slice))
	k = append(k, pidSeg...)
	k = append(k, pid...)
	return k
}

// sliceOffsetPrefix builds the key prefix shared by every pid within one
// slice of a named projection, used to scan a slice's offsets.
func sliceOffsetPrefix(projectionName string, slice int) []byte {
	k := make([]byte, 0, len(projectionName)+16)
	k = append(k, projPrefix...)
	k = append(k, projectionName...)
	k = append(k, sliceSeg...)
	k = appendBE2(k, uint16(slice))
	k = append(k, pidSeg...)
	return k
}

// projectionPrefix builds the key prefix shared by every offset record of a
// named projection, across all slices, used by ManagementClearOffset.
func projectionPrefix(projectionName string) []byte {
	k := make([]byte, 0, len(projectionName)+8)
	k = append(k, projPrefix...)
	k = append(k, projectionName...)
	k = append(k, sliceSeg...)
	return k
}

func keyManagement(projectionName string) []byte {
	k := make([]byte, 0, len(projectionName)+8)
	k = append(k, projPrefix...)
	k = append(k, projectionName...)
	k = append(k, mgmtSuffix...)
	return k
}
