// Package manifest implements VersionEdit, the unit of change appended to
// the MANIFEST log, and the MANIFEST reader/writer themselves.
//
// Unlike the teacher's RocksDB-compatible MANIFEST (a tagged, extensible
// record format carrying column families, 2PC markers, and a CURRENT-file
// indirection to the active MANIFEST generation), this engine keeps one
// fixed-name MANIFEST file and a VersionEdit with exactly the fields a
// single-column-family, single-writer LSM tree needs: file additions,
// file removals, the next file number, and the last sequence number.
package manifest

import (
	"fmt"

	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
)

// FileMetaData describes one SST file tracked by a Version.
type FileMetaData struct {
	Number   uint64
	FileSize uint64
	Smallest []byte // smallest internal key in the file
	Largest  []byte // largest internal key in the file

	// AllowedSeeks is the seek-triggered-compaction budget: the file is
	// queued for compaction once AllowedSeeks seeks have landed in it
	// without a flush/compaction resetting the counter. Not persisted —
	// recomputed from FileSize on load (see AllowedSeeksFor).
	AllowedSeeks int64

	// BeingCompacted is runtime-only state, not persisted to the MANIFEST.
	BeingCompacted bool
}

// AllowedSeeksFor computes the seek-compaction budget for a file of the
// given size: one allowed seek per 16KiB, floored at 1.
func AllowedSeeksFor(fileSize uint64) int64 {
	const seekBudgetBytes = 16 * 1024
	n := int64(fileSize / seekBudgetBytes)
	if n < 1 {
		n = 1
	}
	return n
}

// DeletedFileEntry identifies a file removed from a level by an edit.
type DeletedFileEntry struct {
	Level      int
	FileNumber uint64
}

// NewFileEntry identifies a file added to a level by an edit.
type NewFileEntry struct {
	Level int
	Meta  FileMetaData
}

// VersionEdit is one atomic change to apply to the current Version: some
// files removed, some files added, and updated file-number/sequence
// counters.
type VersionEdit struct {
	HasNextFileNumber bool
	NextFileNumber    uint64

	HasLastSequence bool
	LastSequence    uint64

	DeletedFiles []DeletedFileEntry
	NewFiles     []NewFileEntry
}

// AddFile records a new file being added to level.
func (ve *VersionEdit) AddFile(level int, meta FileMetaData) {
	ve.NewFiles = append(ve.NewFiles, NewFileEntry{Level: level, Meta: meta})
}

// DeleteFile records a file being removed from level.
func (ve *VersionEdit) DeleteFile(level int, fileNumber uint64) {
	ve.DeletedFiles = append(ve.DeletedFiles, DeletedFileEntry{Level: level, FileNumber: fileNumber})
}

// SetNextFileNumber records the next file number to allocate.
func (ve *VersionEdit) SetNextFileNumber(n uint64) {
	ve.NextFileNumber = n
	ve.HasNextFileNumber = true
}

// SetLastSequence records the last sequence number written.
func (ve *VersionEdit) SetLastSequence(seq uint64) {
	ve.LastSequence = seq
	ve.HasLastSequence = true
}

// Encode serializes the edit to the payload carried by one MANIFEST
// record (the recordlog framing wraps this with a checksum and length).
func (ve *VersionEdit) Encode() []byte {
	var out []byte

	var flags byte
	if ve.HasNextFileNumber {
		flags |= 1
	}
	if ve.HasLastSequence {
		flags |= 2
	}
	out = append(out, flags)

	if ve.HasNextFileNumber {
		out = encoding.AppendFixed64(out, ve.NextFileNumber)
	}
	if ve.HasLastSequence {
		out = encoding.AppendFixed64(out, ve.LastSequence)
	}

	out = encoding.AppendFixed32(out, uint32(len(ve.DeletedFiles)))
	for _, d := range ve.DeletedFiles {
		out = encoding.AppendFixed32(out, uint32(d.Level))
		out = encoding.AppendFixed64(out, d.FileNumber)
	}

	out = encoding.AppendFixed32(out, uint32(len(ve.NewFiles)))
	for _, f := range ve.NewFiles {
		out = encoding.AppendFixed32(out, uint32(f.Level))
		out = encoding.AppendFixed64(out, f.Meta.Number)
		out = encoding.AppendFixed64(out, f.Meta.FileSize)
		out = encoding.AppendLengthPrefixedSlice(out, f.Meta.Smallest)
		out = encoding.AppendLengthPrefixedSlice(out, f.Meta.Largest)
	}

	return out
}

// Decode parses a VersionEdit from a MANIFEST record payload produced by
// Encode.
func Decode(data []byte) (*VersionEdit, error) {
	ve := &VersionEdit{}
	if len(data) < 1 {
		return nil, fmt.Errorf("manifest: empty edit: %w", errs.ErrDecode)
	}
	flags := data[0]
	data = data[1:]

	if flags&1 != 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("manifest: truncated next-file-number: %w", errs.ErrDecode)
		}
		ve.NextFileNumber = encoding.DecodeFixed64(data)
		ve.HasNextFileNumber = true
		data = data[8:]
	}
	if flags&2 != 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("manifest: truncated last-sequence: %w", errs.ErrDecode)
		}
		ve.LastSequence = encoding.DecodeFixed64(data)
		ve.HasLastSequence = true
		data = data[8:]
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("manifest: truncated deleted-files count: %w", errs.ErrDecode)
	}
	numDeleted := int(encoding.DecodeFixed32(data))
	data = data[4:]
	for i := 0; i < numDeleted; i++ {
		if len(data) < 12 {
			return nil, fmt.Errorf("manifest: truncated deleted-file %d: %w", i, errs.ErrDecode)
		}
		level := int(encoding.DecodeFixed32(data))
		fileNum := encoding.DecodeFixed64(data[4:])
		ve.DeletedFiles = append(ve.DeletedFiles, DeletedFileEntry{Level: level, FileNumber: fileNum})
		data = data[12:]
	}

	if len(data) < 4 {
		return nil, fmt.Errorf("manifest: truncated new-files count: %w", errs.ErrDecode)
	}
	numNew := int(encoding.DecodeFixed32(data))
	data = data[4:]
	for i := 0; i < numNew; i++ {
		if len(data) < 4+8+8 {
			return nil, fmt.Errorf("manifest: truncated new-file %d header: %w", i, errs.ErrDecode)
		}
		level := int(encoding.DecodeFixed32(data))
		data = data[4:]
		number := encoding.DecodeFixed64(data)
		data = data[8:]
		fileSize := encoding.DecodeFixed64(data)
		data = data[8:]

		smallest, n, err := encoding.DecodeLengthPrefixedSlice(data)
		if err != nil {
			return nil, fmt.Errorf("manifest: new-file %d smallest: %w", i, errs.ErrDecode)
		}
		data = data[n:]
		largest, n, err := encoding.DecodeLengthPrefixedSlice(data)
		if err != nil {
			return nil, fmt.Errorf("manifest: new-file %d largest: %w", i, errs.ErrDecode)
		}
		data = data[n:]

		meta := FileMetaData{
			Number:       number,
			FileSize:     fileSize,
			Smallest:     append([]byte(nil), smallest...),
			Largest:      append([]byte(nil), largest...),
			AllowedSeeks: AllowedSeeksFor(fileSize),
		}
		ve.NewFiles = append(ve.NewFiles, NewFileEntry{Level: level, Meta: meta})
	}

	return ve, nil
}
