// Package ckv implements an embedded, ordered, durable key-value store on
// an LSM tree with WiscKey-style large-value separation: values at or
// above Options.KVSeparateThreshold are appended to a value log (VLOG) and
// the SST carries only a small pointer, keeping compaction's I/O
// proportional to key+pointer size rather than value size.
//
// The engine is single-process and single-writer: concurrent Put/Write
// calls are serialized internally, concurrent Get/NewIterator calls are
// lock-free against the current Version. There is no network layer and no
// distributed consensus.
//
// A typical session:
//
//	e, err := ckv.Open("/path/to/db", ckv.DefaultOptions())
//	if err != nil { ... }
//	defer e.Close()
//	err = e.Put([]byte("k"), []byte("v"))
//	v, err := e.Get([]byte("k"))
package ckv
