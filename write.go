package ckv

import (
	"github.com/crwen/ckv/internal/batch"
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/memtable"
	"github.com/crwen/ckv/internal/wal"
	"github.com/crwen/ckv/internal/vlog"
)

// Put writes key/value, replacing any existing value for key.
func (e *Engine) Put(key, value []byte) error {
	wb := batch.New()
	wb.Put(key, value)
	return e.Write(wb)
}

// Delete records a tombstone for key. Get on key subsequently returns
// ErrNotFound until a later Put.
func (e *Engine) Delete(key []byte) error {
	wb := batch.New()
	wb.Delete(key)
	return e.Write(wb)
}

// Write applies every operation in wb atomically: one WAL record, one
// contiguous run of sequence numbers, one pass over the active memtable.
func (e *Engine) Write(wb *batch.WriteBatch) error {
	if e.isClosed() {
		return errClosed
	}
	if err := e.backgroundError(); err != nil {
		return err
	}
	if wb.Count() == 0 {
		return nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.backgroundError(); err != nil {
		return err
	}
	if err := e.maybeRotateMemtable(); err != nil {
		return err
	}

	if err := e.walWriter.Append(wb); err != nil {
		e.setBackgroundError(err)
		return err
	}

	e.rmu.RLock()
	mem := e.mem
	e.rmu.RUnlock()

	seq := e.lastSeq.Load()
	for _, op := range wb.Ops() {
		seq++
		cell, err := e.tagValue(op.Key, op.Value, op.Type)
		if err != nil {
			e.setBackgroundError(err)
			return err
		}
		mem.Add(op.Key, dbformat.SequenceNumber(seq), op.Type, cell)
	}
	e.lastSeq.Store(seq)
	e.vs.SetLastSequence(seq)

	return nil
}

// tagValue builds the value cell stored in the memtable (and later the
// SST) for one operation: a deletion carries no cell, a small value is
// tagged inline, a large one (>= KVSeparateThreshold) is appended to the
// value log and replaced by a Pointer. Applying this at write time — not
// just at flush time — means the memtable, SST, compaction merge, and Get
// all handle one cell format uniformly.
func (e *Engine) tagValue(key, value []byte, t dbformat.ValueType) ([]byte, error) {
	if t == dbformat.TypeDeletion {
		return nil, nil
	}
	if len(value) < e.opts.KVSeparateThreshold {
		return vlog.EncodeInline(nil, value), nil
	}

	e.vlogMu.Lock()
	ptr, err := e.vlogWriter.Append(key, value)
	rotate := err == nil && e.vlogWriter.Size() >= vlogRotateSize
	e.vlogMu.Unlock()
	if err != nil {
		return nil, err
	}
	if rotate {
		if err := e.rotateVlog(); err != nil {
			return nil, err
		}
	}
	return ptr.Encode(nil), nil
}

// rotateVlog closes the active value log file and opens a fresh one.
// Older value log files are never reopened for writing; they stay
// readable purely through the FileID recorded in each Pointer.
func (e *Engine) rotateVlog() error {
	e.vlogMu.Lock()
	defer e.vlogMu.Unlock()
	old := e.vlogWriter
	num := e.vs.NewFileNumber()
	nw, err := vlog.Create(e.fs, e.dir, num)
	if err != nil {
		return err
	}
	e.vlogWriter = nw
	return old.Close()
}

// maybeRotateMemtable swaps the active memtable for a fresh one and
// queues the old one for background flush once it has crossed
// MemtableSizeThreshold. Called with writeMu held. If a flush is already
// in flight (e.imm != nil), rotation is skipped for this write — the next
// write will retry once the flush completes.
func (e *Engine) maybeRotateMemtable() error {
	if e.mem.ApproximateMemoryUsage() < e.opts.MemtableSizeThreshold {
		return nil
	}
	if e.imm != nil {
		return nil
	}

	newNum := e.vs.NewFileNumber()
	ww, err := wal.Create(e.fs, e.dir, newNum)
	if err != nil {
		return err
	}
	oldWAL := e.walWriter
	oldWALNum := e.walFileNum

	e.rmu.Lock()
	e.imm = e.mem
	e.mem = memtable.New()
	e.rmu.Unlock()

	e.immWALFileNum = oldWALNum
	e.walWriter = ww
	e.walFileNum = newNum

	if err := oldWAL.Close(); err != nil {
		e.logger.Warnf("close rotated wal %d: %v", oldWALNum, err)
	}

	e.wake()
	return nil
}
