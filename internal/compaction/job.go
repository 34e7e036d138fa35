package compaction

import (
	"fmt"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/iterator"
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/vfs"
)

// JobOptions configures how a Job writes output SSTs.
type JobOptions struct {
	BuilderOptions table.BuilderOptions
	TargetFileSize uint64
	NewFileNumber  func() uint64
}

// Job executes one Compaction: merges its input files and emits a
// manifest.VersionEdit describing the resulting set of deletions and new
// files. The caller is responsible for committing the edit via
// VersionSet.LogAndApply once Run succeeds.
type Job struct {
	fs   vfs.FS
	dir  string
	opts JobOptions
}

// NewJob creates a Job writing new SSTs under dir.
func NewJob(fs vfs.FS, dir string, opts JobOptions) *Job {
	return &Job{fs: fs, dir: dir, opts: opts}
}

// Run merges c.Inputs (from c.Level and any overlapping c.Grandparent files
// at c.OutputLevel) into a sorted run of SSTs at c.OutputLevel, dropping
// obsolete key versions and — when c.IsBaseLevel — DELETE tombstones that
// have no older version left to shadow.
func (j *Job) Run(c *Compaction) (*manifest.VersionEdit, error) {
	var files []*manifest.FileMetaData
	files = append(files, c.Inputs...)
	files = append(files, c.Grandparent...)

	iters := make([]iterator.Iterator, 0, len(files))
	readers := make([]*table.Reader, 0, len(files))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	for _, f := range files {
		path := j.dir + "/" + table.FileName(f.Number)
		r, err := table.Open(j.fs, path)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
		iters = append(iters, r.NewIterator())
	}

	merged := iterator.NewMergingIterator(iters, nil)

	ve := &manifest.VersionEdit{}
	for _, f := range c.Inputs {
		ve.DeleteFile(c.Level, f.Number)
	}
	for _, f := range c.Grandparent {
		ve.DeleteFile(c.OutputLevel, f.Number)
	}

	var (
		out         *outputFile
		lastUserKey []byte
		haveLastKey bool
	)

	flushOutput := func() error {
		if out == nil {
			return nil
		}
		meta, err := out.finish()
		if err != nil {
			return err
		}
		if meta != nil {
			ve.AddFile(c.OutputLevel, *meta)
		}
		out = nil
		return nil
	}

	for merged.SeekToFirst(); merged.Valid(); merged.Next() {
		key := merged.Key()
		userKey := dbformat.ExtractUserKey(key)
		valueType := dbformat.ExtractValueType(key)

		if haveLastKey && dbformat.BytewiseCompare(userKey, lastUserKey) == 0 {
			// An older version of a key already emitted at this compaction:
			// no open snapshot can observe it (this engine never retains
			// snapshots past the current read sequence), so it is obsolete.
			continue
		}
		lastUserKey = append(lastUserKey[:0], userKey...)
		haveLastKey = true

		if valueType == dbformat.TypeDeletion && c.IsBaseLevel {
			continue
		}

		if out == nil {
			fileNumber := j.opts.NewFileNumber()
			var err error
			out, err = newOutputFile(j.fs, j.dir, fileNumber, j.opts.BuilderOptions)
			if err != nil {
				return nil, err
			}
		}
		if err := out.add(key, merged.Value()); err != nil {
			return nil, err
		}
		if uint64(out.builder.FileSize()) >= j.opts.TargetFileSize {
			if err := flushOutput(); err != nil {
				return nil, err
			}
		}
	}
	if err := merged.Error(); err != nil {
		return nil, fmt.Errorf("compaction: merge: %w", err)
	}
	if err := flushOutput(); err != nil {
		return nil, err
	}

	return ve, nil
}

type outputFile struct {
	fs       vfs.FS
	path     string
	f        vfs.WritableFile
	builder  *table.Builder
	number   uint64
	smallest []byte
	largest  []byte
}

func newOutputFile(fs vfs.FS, dir string, number uint64, opts table.BuilderOptions) (*outputFile, error) {
	path := dir + "/" + table.FileName(number)
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("compaction: create %s: %w", path, errs.ErrIO)
	}
	return &outputFile{
		fs:      fs,
		path:    path,
		f:       f,
		builder: table.NewBuilder(f, opts),
		number:  number,
	}, nil
}

func (o *outputFile) add(key, value []byte) error {
	if o.smallest == nil {
		o.smallest = append([]byte(nil), key...)
	}
	o.largest = append(o.largest[:0], key...)
	return o.builder.Add(key, value)
}

func (o *outputFile) finish() (*manifest.FileMetaData, error) {
	if o.builder.NumEntries() == 0 {
		_ = o.f.Close()
		_ = o.fs.Remove(o.path)
		return nil, nil
	}
	if err := o.builder.Finish(); err != nil {
		return nil, err
	}
	if err := o.f.Sync(); err != nil {
		return nil, fmt.Errorf("compaction: sync %s: %w", o.path, errs.ErrIO)
	}
	if err := o.f.Close(); err != nil {
		return nil, fmt.Errorf("compaction: close %s: %w", o.path, errs.ErrIO)
	}
	return &manifest.FileMetaData{
		Number:       o.number,
		FileSize:     uint64(o.builder.FileSize()),
		Smallest:     o.smallest,
		Largest:      o.largest,
		AllowedSeeks: manifest.AllowedSeeksFor(uint64(o.builder.FileSize())),
	}, nil
}
