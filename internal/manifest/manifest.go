package manifest

import (
	"fmt"
	"io"

	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/recordlog"
	"github.com/crwen/ckv/internal/vfs"
)

// FileName is the fixed MANIFEST file name. There is no CURRENT-file
// indirection to a numbered MANIFEST generation — recovery always opens
// this one file.
const FileName = "MANIFEST"

// Writer appends VersionEdit records to the MANIFEST file.
type Writer struct {
	f vfs.WritableFile
}

// OpenWriter opens the MANIFEST file for appending, creating it if absent.
// Existing contents (already replayed by ReadAll during recovery) are
// preserved — this must never truncate.
func OpenWriter(fs vfs.FS, dir string) (*Writer, error) {
	f, err := fs.OpenAppend(dir + "/" + FileName)
	if err != nil {
		return nil, fmt.Errorf("manifest: open writer: %w", errs.ErrIO)
	}
	return &Writer{f: f}, nil
}

// Append writes one VersionEdit as a framed record and fsyncs it before
// returning, so a crash never leaves a torn final record observable as a
// "successful" LogAndApply.
func (w *Writer) Append(ve *VersionEdit) error {
	rec := recordlog.AppendRecord(nil, ve.Encode())
	if _, err := w.f.Write(rec); err != nil {
		return fmt.Errorf("manifest: append: %w", errs.ErrIO)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("manifest: sync: %w", errs.ErrIO)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.f.Close()
}

// ReadAll replays every VersionEdit recorded in the MANIFEST file at dir,
// stopping cleanly at the first truncated record (the normal aftermath of
// a crash mid-append).
func ReadAll(fs vfs.FS, dir string) ([]*VersionEdit, error) {
	f, err := fs.Open(dir + "/" + FileName)
	if err != nil {
		if !fs.Exists(dir + "/" + FileName) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: open for read: %w", errs.ErrIO)
	}
	defer func() { _ = f.Close() }()

	r := recordlog.NewReader(f)
	var edits []*VersionEdit
	for {
		payload, err := r.Next()
		if err == io.EOF || err == recordlog.ErrTruncated {
			break
		}
		if err != nil {
			return edits, err
		}
		ve, err := Decode(payload)
		if err != nil {
			// A checksum-valid but undecodable record is real corruption,
			// not a torn write; surface it.
			return edits, err
		}
		edits = append(edits, ve)
	}
	return edits, nil
}
