// Package wal implements the write-ahead log: one framed recordlog record
// per WriteBatch, fsynced before the write is acknowledged to the caller.
package wal

import (
	"fmt"
	"io"

	"github.com/crwen/ckv/internal/batch"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/recordlog"
	"github.com/crwen/ckv/internal/vfs"
)

// FileName returns the WAL file name for the given log number.
func FileName(logNumber uint64) string {
	return fmt.Sprintf("%06d.wal", logNumber)
}

// Writer appends WriteBatch records to one WAL file.
type Writer struct {
	f vfs.WritableFile
}

// Create creates (truncating if present) the WAL file for logNumber.
func Create(fs vfs.FS, dir string, logNumber uint64) (*Writer, error) {
	f, err := fs.Create(dir + "/" + FileName(logNumber))
	if err != nil {
		return nil, fmt.Errorf("wal: create: %w", errs.ErrIO)
	}
	return &Writer{f: f}, nil
}

// Append writes one batch as a framed record and fsyncs the file.
func (w *Writer) Append(wb *batch.WriteBatch) error {
	rec := recordlog.AppendRecord(nil, wb.Encode())
	if _, err := w.f.Write(rec); err != nil {
		return fmt.Errorf("wal: append: %w", errs.ErrIO)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", errs.ErrIO)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// Replay reads every batch recorded in the WAL file for logNumber, calling
// fn for each in order. Replay stops cleanly (without error) at the first
// truncated record, the normal aftermath of a crash mid-append. If the WAL
// file does not exist, Replay is a no-op.
func Replay(fs vfs.FS, dir string, logNumber uint64, fn func(*batch.WriteBatch) error) error {
	name := dir + "/" + FileName(logNumber)
	if !fs.Exists(name) {
		return nil
	}
	f, err := fs.Open(name)
	if err != nil {
		return fmt.Errorf("wal: open for replay: %w", errs.ErrIO)
	}
	defer func() { _ = f.Close() }()

	r := recordlog.NewReader(f)
	for {
		payload, err := r.Next()
		if err == io.EOF || err == recordlog.ErrTruncated {
			return nil
		}
		if err != nil {
			return err
		}
		wb, err := batch.Decode(payload)
		if err != nil {
			return err
		}
		if err := fn(wb); err != nil {
			return err
		}
	}
}

// Remove deletes the WAL file for logNumber.
func Remove(fs vfs.FS, dir string, logNumber uint64) error {
	return fs.Remove(dir + "/" + FileName(logNumber))
}
