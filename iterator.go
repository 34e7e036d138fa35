package ckv

import (
	"github.com/crwen/ckv/internal/cache"
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/iterator"
	"github.com/crwen/ckv/internal/version"
)

// Iterator walks the engine's live key space in ascending user-key order:
// every SST level and both memtables merged, obsolete versions of a key
// dropped, and tombstones skipped (a live iterator never surfaces a
// deleted key, unlike a compaction merge which may still need to carry a
// tombstone downward).
type Iterator struct {
	engine  *Engine
	merged  *iterator.MergingIterator
	pinned  []*cache.Handle
	valid   bool
	curKey  []byte
	curVal  []byte
	err     error
}

// NewIterator returns an Iterator positioned before the first key. Call
// SeekToFirst (or Seek) before reading. The Iterator pins every SST file
// it touches in the table cache until Close is called.
func (e *Engine) NewIterator() (*Iterator, error) {
	if e.isClosed() {
		return nil, errClosed
	}

	e.rmu.RLock()
	mem, imm := e.mem, e.imm
	e.rmu.RUnlock()

	v := e.vs.Current()

	children := make([]iterator.Iterator, 0, 2+len(v.Levels[0]))
	children = append(children, mem.NewIterator())
	if imm != nil {
		children = append(children, imm.NewIterator())
	}

	var pinned []*cache.Handle
	for level := 0; level < version.NumLevels; level++ {
		for _, f := range v.Levels[level] {
			r, h, err := e.tableCache.Get(f.Number)
			if err != nil {
				for _, ph := range pinned {
					_ = e.tableCache.Release(ph)
				}
				return nil, err
			}
			pinned = append(pinned, h)
			children = append(children, r.NewIterator())
		}
	}

	return &Iterator{
		engine: e,
		merged: iterator.NewMergingIterator(children, nil),
		pinned: pinned,
	}, nil
}

// Close releases every SST handle the iterator pinned. It does not error
// if any individual release fails to find the handle still cached.
func (it *Iterator) Close() error {
	for _, h := range it.pinned {
		_ = it.engine.tableCache.Release(h)
	}
	return nil
}

// Valid reports whether the iterator is positioned at a live entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current user key. Valid until the next positioning call.
func (it *Iterator) Key() []byte { return it.curKey }

// Value returns the current value, resolved through the value log if the
// entry was KV-separated.
func (it *Iterator) Value() []byte { return it.curVal }

// Error returns any error encountered while positioning the iterator.
func (it *Iterator) Error() error { return it.err }

// SeekToFirst positions the iterator at the smallest live user key.
func (it *Iterator) SeekToFirst() {
	it.merged.SeekToFirst()
	it.advance(nil)
}

// Seek positions the iterator at the smallest live user key >= target.
func (it *Iterator) Seek(target []byte) {
	it.merged.Seek(dbformat.NewInternalKey(target, dbformat.MaxSequenceNumber, dbformat.ValueTypeForSeek))
	it.advance(nil)
}

// Next advances to the next live user key.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	skip := it.curKey
	it.merged.Next()
	it.advance(skip)
}

// advance scans forward from the merged iterator's current position,
// skipping any entry sharing a user key with skipUserKey (an older
// version already superseded) and any tombstone (and everything older
// for that same key), until it lands on a live entry or exhausts input.
func (it *Iterator) advance(skipUserKey []byte) {
	for it.merged.Valid() {
		key := it.merged.Key()
		userKey := dbformat.ExtractUserKey(key)

		if skipUserKey != nil && dbformat.BytewiseCompare(userKey, skipUserKey) == 0 {
			it.merged.Next()
			continue
		}

		cell := it.merged.Value()
		if dbformat.ExtractValueType(key) == dbformat.TypeDeletion || len(cell) == 0 {
			skipUserKey = userKey
			it.merged.Next()
			continue
		}

		value, err := it.engine.resolveCell(cell)
		if err != nil {
			it.valid = false
			it.err = err
			return
		}
		it.curKey = append(it.curKey[:0], userKey...)
		it.curVal = value
		it.valid = true
		return
	}

	it.valid = false
	it.err = it.merged.Error()
}
