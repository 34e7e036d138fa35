package ckv

import (
	"fmt"

	"github.com/crwen/ckv/internal/compaction"
	"github.com/crwen/ckv/internal/logging"
	"github.com/crwen/ckv/internal/table"
)

// backgroundLoop is the single background worker: it flushes the
// immutable memtable and drives compaction, woken by wakeCh (size/count
// triggers) or seekCh (seek-triggered compaction), until closeCh closes.
func (e *Engine) backgroundLoop() {
	defer e.bgWG.Done()
	for {
		select {
		case <-e.closeCh:
			return
		case req := <-e.seekCh:
			e.runSeekCompaction(req)
		case <-e.wakeCh:
			e.backgroundFlush()
			e.runSizeCompactions()
		}
	}
}

// runSizeCompactions drains every size/count-triggered compaction the
// picker reports, one at a time, until the Version is back under budget.
func (e *Engine) runSizeCompactions() {
	for !e.isClosed() {
		v := e.vs.Current()
		if !e.picker.NeedsCompaction(v) {
			return
		}
		c := e.picker.PickSizeCompaction(v)
		if c == nil {
			return
		}
		if err := e.runCompaction(c); err != nil {
			e.setBackgroundError(fmt.Errorf("compact: %w", err))
			return
		}
	}
}

func (e *Engine) runSeekCompaction(req seekCompactionRequest) {
	v := e.vs.Current()
	c := e.picker.PickSeekCompaction(v, req.level, req.file)
	if c == nil {
		return
	}
	if err := e.runCompaction(c); err != nil {
		e.setBackgroundError(fmt.Errorf("compact: seek: %w", err))
	}
}

// runCompaction executes c, commits the resulting VersionEdit, and evicts
// every consumed input file from the table cache and filesystem.
func (e *Engine) runCompaction(c *compaction.Compaction) error {
	job := compaction.NewJob(e.fs, e.dir, compaction.JobOptions{
		BuilderOptions: e.builderOptions(),
		TargetFileSize: e.opts.TargetFileSize,
		NewFileNumber:  e.vs.NewFileNumber,
	})

	ve, err := job.Run(c)
	if err != nil {
		return err
	}
	if err := e.vs.LogAndApply(ve); err != nil {
		return err
	}

	for _, f := range c.Inputs {
		e.removeFile(f.Number)
	}
	for _, f := range c.Grandparent {
		e.removeFile(f.Number)
	}

	e.logger.Infof("%scompacted L%d -> L%d (%d input, %d grandparent, %d output)",
		logging.NSCompact, c.Level, c.OutputLevel, len(c.Inputs), len(c.Grandparent), len(ve.NewFiles))
	return nil
}

func (e *Engine) removeFile(number uint64) {
	e.tableCache.Evict(number)
	if err := e.fs.Remove(e.dir + "/" + table.FileName(number)); err != nil {
		e.logger.Warnf("%sremove obsolete %s: %v", logging.NSCompact, table.FileName(number), err)
	}
}
