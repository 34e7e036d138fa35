package ckv

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crwen/ckv/internal/batch"
	"github.com/crwen/ckv/internal/compaction"
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/logging"
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/memtable"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/version"
	"github.com/crwen/ckv/internal/vfs"
	"github.com/crwen/ckv/internal/vlog"
	"github.com/crwen/ckv/internal/wal"
)

// vlogRotateSize is the approximate size at which the active value log
// file is rotated to a fresh one. Not user-configurable: unlike
// KVSeparateThreshold, VLOG rotation changes no on-disk encoding, only
// how many file descriptors worth of history accumulate.
const vlogRotateSize = 64 * 1024 * 1024

// Engine is the embedded key-value store. One Engine owns one directory;
// Put/Delete/Write are serialized internally (single-writer model), while
// Get and NewIterator run lock-free against the current Version.
type Engine struct {
	dir    string
	opts   *Options
	fs     vfs.FS
	lock   io.Closer
	logger logging.Logger

	writeMu sync.Mutex // serializes Put/Delete/Write

	rmu sync.RWMutex // protects mem/imm pointer swaps during rotation
	mem *memtable.MemTable
	imm *memtable.MemTable

	walWriter     *wal.Writer
	walFileNum    uint64
	immWALFileNum uint64 // WAL backing imm; removed once imm is flushed

	lastSeq atomic.Uint64

	vs         *version.VersionSet
	tableCache *table.Cache
	picker     *compaction.Picker

	vlogMu     sync.Mutex
	vlogWriter *vlog.Writer
	vlogReader *vlog.Reader

	closed  atomic.Bool
	bgErr   atomic.Pointer[error]
	wakeCh  chan struct{}
	seekCh  chan seekCompactionRequest
	closeCh chan struct{}
	bgWG    sync.WaitGroup
}

type seekCompactionRequest struct {
	level int
	file  *manifest.FileMetaData
}

// Open opens (or creates, per Options.CreateIfMissing) the database at dir.
func Open(dir string, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fs := vfs.Default()
	logger := logging.OrDefault(opts.Logger)

	exists := fs.Exists(dir + "/" + manifest.FileName)
	if exists && opts.ErrorIfExists {
		return nil, fmt.Errorf("ckv: %s already exists", dir)
	}
	if !exists {
		if !opts.CreateIfMissing {
			return nil, fmt.Errorf("ckv: %s does not exist", dir)
		}
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ckv: create dir: %w", err)
		}
	}

	lock, err := fs.Lock(dir + "/LOCK")
	if err != nil {
		return nil, fmt.Errorf("ckv: lock %s: %w", dir, err)
	}

	vs, err := version.Recover(fs, dir)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("ckv: recover manifest: %w", err)
	}

	e := &Engine{
		dir:        dir,
		opts:       opts,
		fs:         fs,
		lock:       lock,
		logger:     logger,
		vs:         vs,
		tableCache: table.NewCache(fs, dir, opts.TableCacheSize),
		picker:     compaction.NewPicker(version.NumLevels, opts.L0Trigger, opts.MaxBytesForLevelBase, opts.LevelSizeMultiplier),
		vlogReader: vlog.NewReader(fs, dir),
		mem:        memtable.New(),
		wakeCh:     make(chan struct{}, 1),
		seekCh:     make(chan seekCompactionRequest, 64),
		closeCh:    make(chan struct{}),
	}
	if dl, ok := logger.(*logging.DefaultLogger); ok {
		dl.SetFatalHandler(e.setBackgroundErrorMsg)
	}

	e.lastSeq.Store(vs.LastSequence())

	vlogFileNum := vs.NewFileNumber()
	vw, err := vlog.Create(fs, dir, vlogFileNum)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("ckv: create vlog: %w", err)
	}
	e.vlogWriter = vw

	walNums, err := e.existingWALFileNumbers()
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	if err := e.recoverWAL(walNums); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("ckv: recover wal: %w", err)
	}
	if e.mem.Count() > 0 {
		meta, err := e.runFlush(e.mem)
		if err != nil {
			_ = lock.Close()
			return nil, fmt.Errorf("ckv: flush recovered memtable: %w", err)
		}
		if meta != nil {
			if err := e.commitFlush(meta); err != nil {
				_ = lock.Close()
				return nil, fmt.Errorf("ckv: commit recovered flush: %w", err)
			}
		}
		e.mem = memtable.New()
	}
	for _, n := range walNums {
		_ = wal.Remove(fs, dir, n)
	}

	e.walFileNum = vs.NewFileNumber()
	ww, err := wal.Create(fs, dir, e.walFileNum)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("ckv: create wal: %w", err)
	}
	e.walWriter = ww

	e.bgWG.Add(1)
	go e.backgroundLoop()

	if e.picker.NeedsCompaction(e.vs.Current()) {
		e.wake()
	}

	return e, nil
}

// recoverWAL replays every pre-crash WAL file into e.mem, assigning a
// fresh monotonic sequence number to each operation as it is replayed.
// The exact pre-crash sequence values are not recoverable from the WAL
// encoding (and do not need to be: only relative ordering matters), so a
// counter starting at the last sequence recorded in the MANIFEST is used
// instead.
func (e *Engine) recoverWAL(walNums []uint64) error {
	seq := e.lastSeq.Load()
	for _, n := range walNums {
		err := wal.Replay(e.fs, e.dir, n, func(wb *batch.WriteBatch) error {
			for _, op := range wb.Ops() {
				seq++
				cell, err := e.tagValue(op.Key, op.Value, op.Type)
				if err != nil {
					return err
				}
				e.mem.Add(op.Key, dbformat.SequenceNumber(seq), op.Type, cell)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("replay %06d.wal: %w", n, err)
		}
	}
	if seq > e.lastSeq.Load() {
		e.lastSeq.Store(seq)
		e.vs.SetLastSequence(seq)
	}
	return nil
}

// existingWALFileNumbers returns the file numbers of *.wal files in dir,
// in ascending (replay) order.
func (e *Engine) existingWALFileNumbers() ([]uint64, error) {
	names, err := e.fs.ListDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("ckv: list dir: %w", err)
	}
	var nums []uint64
	for _, name := range names {
		if !strings.HasSuffix(name, ".wal") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".wal"), 10, 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// Close stops background work and releases the directory lock. It does
// not flush the active memtable — callers that need every write durable
// in an SST before closing should rely on the WAL already having fsynced
// each write; the next Open replays it.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.closeCh)
	e.bgWG.Wait()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.walWriter != nil {
		record(e.walWriter.Close())
	}
	e.vlogMu.Lock()
	if e.vlogWriter != nil {
		record(e.vlogWriter.Close())
	}
	e.vlogMu.Unlock()
	record(e.vs.Close())
	record(e.lock.Close())
	return firstErr
}

func (e *Engine) isClosed() bool { return e.closed.Load() }

func (e *Engine) backgroundError() error {
	if p := e.bgErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (e *Engine) setBackgroundError(err error) {
	if err == nil {
		return
	}
	wrapped := fmt.Errorf("ckv: background error: %w", err)
	if e.bgErr.CompareAndSwap(nil, &wrapped) {
		e.logger.Errorf("%sbackground error: %v", logging.NSDB, err)
	}
}

func (e *Engine) setBackgroundErrorMsg(msg string) {
	e.setBackgroundError(fmt.Errorf("%s", msg))
}

func (e *Engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *Engine) builderOptions() table.BuilderOptions {
	return table.BuilderOptions{
		BlockSize:        e.opts.BlockSize,
		FilterBitsPerKey: e.opts.BloomBitsPerKey,
		Compression:      e.opts.Compression,
	}
}

var errClosed = fmt.Errorf("ckv: %w", errs.ErrClosed)
