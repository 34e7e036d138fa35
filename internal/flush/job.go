// Package flush implements the flush operation that writes an immutable
// memtable out to an SST file at L0.
package flush

import (
	"errors"
	"fmt"

	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/memtable"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/vfs"
)

// ErrNoOutput is returned when a flush produces no output (empty memtable).
var ErrNoOutput = errors.New("flush: no output")

// Job flushes one memtable to an SST file at L0.
type Job struct {
	fs      vfs.FS
	dir     string
	opts    table.BuilderOptions
	fileNum uint64
}

// NewJob creates a flush job writing fileNum.sst under dir.
func NewJob(fs vfs.FS, dir string, fileNum uint64, opts table.BuilderOptions) *Job {
	return &Job{fs: fs, dir: dir, fileNum: fileNum, opts: opts}
}

// Run iterates mem in key order and writes its entries to a new SST file,
// returning the resulting file's metadata. If mem has no entries, Run
// removes the (empty) file and returns ErrNoOutput.
func (j *Job) Run(mem *memtable.MemTable) (*manifest.FileMetaData, error) {
	path := j.dir + "/" + table.FileName(j.fileNum)
	f, err := j.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("flush: create %s: %w", path, err)
	}

	builder := table.NewBuilder(f, j.opts)

	it := mem.NewIterator()
	var smallest, largest []byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := it.Key()
		if smallest == nil {
			smallest = append([]byte(nil), key...)
		}
		largest = append(largest[:0], key...)
		if err := builder.Add(key, it.Value()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flush: add entry: %w", err)
		}
	}
	if err := it.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush: memtable iteration: %w", err)
	}

	if builder.NumEntries() == 0 {
		_ = f.Close()
		_ = j.fs.Remove(path)
		return nil, ErrNoOutput
	}

	if err := builder.Finish(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush: finish SST: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("flush: sync SST: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("flush: close SST: %w", err)
	}
	if err := j.fs.SyncDir(j.dir); err != nil {
		return nil, fmt.Errorf("flush: sync dir: %w", err)
	}

	fileSize := uint64(builder.FileSize())
	return &manifest.FileMetaData{
		Number:       j.fileNum,
		FileSize:     fileSize,
		Smallest:     smallest,
		Largest:      largest,
		AllowedSeeks: manifest.AllowedSeeksFor(fileSize),
	}, nil
}
