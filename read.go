package ckv

import (
	"fmt"
	"sync/atomic"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/version"
	"github.com/crwen/ckv/internal/vlog"
)

// Get returns the value for key, or ErrNotFound if key does not exist (or
// the most recent write to it was a Delete). Lookups check the active
// memtable, then the immutable memtable (if a flush is in flight), then
// L0 newest-file-first, then L1..L6 by binary search.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.isClosed() {
		return nil, errClosed
	}
	if err := e.backgroundError(); err != nil {
		return nil, err
	}

	seq := dbformat.SequenceNumber(e.lastSeq.Load())

	e.rmu.RLock()
	mem, imm := e.mem, e.imm
	e.rmu.RUnlock()

	if cell, found, deleted := mem.Get(key, seq); found {
		if deleted {
			return nil, errs.ErrNotFound
		}
		return e.resolveCell(cell)
	}
	if imm != nil {
		if cell, found, deleted := imm.Get(key, seq); found {
			if deleted {
				return nil, errs.ErrNotFound
			}
			return e.resolveCell(cell)
		}
	}

	v := e.vs.Current()
	lookup := dbformat.NewInternalKey(key, seq, dbformat.ValueTypeForSeek)

	for _, f := range v.Levels[0] {
		cell, found, deleted, err := e.getFromFile(f, 0, lookup)
		if err != nil {
			return nil, err
		}
		if found {
			if deleted {
				return nil, errs.ErrNotFound
			}
			return e.resolveCell(cell)
		}
	}

	for level := 1; level < version.NumLevels; level++ {
		f := v.FindFile(level, key)
		if f == nil {
			continue
		}
		cell, found, deleted, err := e.getFromFile(f, level, lookup)
		if err != nil {
			return nil, err
		}
		if found {
			if deleted {
				return nil, errs.ErrNotFound
			}
			return e.resolveCell(cell)
		}
	}

	return nil, errs.ErrNotFound
}

// getFromFile looks up lookup within f, counting the access against f's
// seek-compaction budget regardless of hit or miss (consulting a file's
// index and filter blocks is the cost seek-compaction guards against, not
// just a successful read).
//
// A stored cell of length zero is a tombstone: tagValue never produces a
// zero-length cell for a live value (even an empty Put value carries at
// least the one-byte inline tag), so the length alone disambiguates a
// tombstone from a found value without needing the matched entry's type.
func (e *Engine) getFromFile(f *manifest.FileMetaData, level int, lookup []byte) (cell []byte, found, deleted bool, err error) {
	r, h, err := e.tableCache.Get(f.Number)
	if err != nil {
		return nil, false, false, fmt.Errorf("ckv: open %s: %w", table.FileName(f.Number), err)
	}
	defer func() { _ = e.tableCache.Release(h) }()

	val, found, err := r.Get(lookup)
	if err != nil {
		return nil, false, false, err
	}
	e.trackSeek(level, f)
	if !found {
		return nil, false, false, nil
	}
	if len(val) == 0 {
		return nil, true, true, nil
	}
	return val, true, false, nil
}

// trackSeek decrements f's allowed-seeks budget and, the moment it is
// exhausted, queues f for seek-triggered compaction. The request is
// dropped (not blocked on) if the queue is full; the next seek past zero
// will try again.
func (e *Engine) trackSeek(level int, f *manifest.FileMetaData) {
	remaining := atomic.AddInt64(&f.AllowedSeeks, -1)
	if remaining != 0 {
		return
	}
	select {
	case e.seekCh <- seekCompactionRequest{level: level, file: f}:
	default:
	}
}

// resolveCell decodes a tagged value cell into the caller-visible value,
// following a VLOG pointer if the value was separated out.
func (e *Engine) resolveCell(cell []byte) ([]byte, error) {
	if value, ok := vlog.DecodeInline(cell); ok {
		return value, nil
	}
	if ptr, ok := vlog.DecodePointer(cell); ok {
		return e.vlogReader.Get(ptr)
	}
	return nil, fmt.Errorf("ckv: corrupt value cell: %w", errs.ErrDecode)
}
