// Package pebblestore is the key-value layer under internal/offsetstore: a
// thin wrapper around Pebble with fsync policy, prefix scans, batches, and
// minimal metrics hooks. It has no notion of offsets, slices, or
// projections itself; offsetstore owns the key layout and record encoding
// and calls down into this package for raw Get/Set/Delete/ScanPrefix/batch
// operations.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
//	// Point ops
//	_ = db.Set([]byte("k2"), []byte("v2"))
//	v, _ := db.Get([]byte("k2"))
//
//	// Prefix scan, as offsetstore uses to read every pid within a slice
//	it, _ := db.ScanPrefix([]byte("proj/checkout/slice/\x00\x07/pid/"))
//	defer it.Close()
//	for valid := it.First(); valid; valid = it.Next() { _ = it.Key() }
package pebblestore
