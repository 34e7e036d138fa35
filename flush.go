package ckv

import (
	"errors"
	"fmt"

	"github.com/crwen/ckv/internal/flush"
	"github.com/crwen/ckv/internal/logging"
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/memtable"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/wal"
)

// runFlush writes mem out to a new L0 SST, returning nil metadata (and no
// error) if mem was empty.
func (e *Engine) runFlush(mem *memtable.MemTable) (*manifest.FileMetaData, error) {
	fileNum := e.vs.NewFileNumber()
	job := flush.NewJob(e.fs, e.dir, fileNum, e.builderOptions())
	meta, err := job.Run(mem)
	if errors.Is(err, flush.ErrNoOutput) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// commitFlush records meta as a new L0 file via the MANIFEST.
func (e *Engine) commitFlush(meta *manifest.FileMetaData) error {
	ve := &manifest.VersionEdit{}
	ve.AddFile(0, *meta)
	return e.vs.LogAndApply(ve)
}

// backgroundFlush flushes the current immutable memtable, if any, and
// removes the WAL file that backed it once the flush is durable.
func (e *Engine) backgroundFlush() {
	e.rmu.RLock()
	imm := e.imm
	e.rmu.RUnlock()
	if imm == nil {
		return
	}

	meta, err := e.runFlush(imm)
	if err != nil {
		e.setBackgroundError(fmt.Errorf("flush: %w", err))
		return
	}
	if meta != nil {
		if err := e.commitFlush(meta); err != nil {
			e.setBackgroundError(fmt.Errorf("flush: commit: %w", err))
			return
		}
		e.logger.Infof("%sflushed memtable to %s (%d bytes)", logging.NSFlush, table.FileName(meta.Number), meta.FileSize)
	}

	immWALNum := e.immWALFileNum
	e.rmu.Lock()
	e.imm = nil
	e.rmu.Unlock()

	if err := wal.Remove(e.fs, e.dir, immWALNum); err != nil {
		e.logger.Warnf("%sremove flushed wal %d: %v", logging.NSFlush, immWALNum, err)
	}
}
