// Package vlog implements the append-only value log: large values (at or
// above the engine's kv_separate_threshold) are written here instead of
// inline in an SST, and the SST carries only a small pointer.
//
// Each value log file is a sequence of recordlog frames whose payload is
// [varint32 keyLen][key][value]. Storing the key alongside the value lets
// garbage collection validate a candidate entry against the current LSM
// state (is this still the live pointer for that key?) without a separate
// side index.
package vlog

import (
	"fmt"
	"io"

	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/recordlog"
	"github.com/crwen/ckv/internal/vfs"
)

// PointerTag marks an SST value cell as a VLOG pointer rather than an
// inline value.
const PointerTag = 0x01

// InlineTag marks an SST value cell as holding the value inline.
const InlineTag = 0x00

// PointerSize is the encoded size of a Pointer: tag + fid + offset.
const PointerSize = 1 + 8 + 8

// Pointer locates a value within a value log file.
type Pointer struct {
	FileID uint64
	Offset uint64
}

// Encode appends the tagged pointer encoding to dst.
func (p Pointer) Encode(dst []byte) []byte {
	dst = append(dst, PointerTag)
	dst = encoding.AppendFixed64(dst, p.FileID)
	dst = encoding.AppendFixed64(dst, p.Offset)
	return dst
}

// DecodePointer decodes a tagged value cell. ok is false if the cell is
// tagged as inline rather than a pointer.
func DecodePointer(cell []byte) (p Pointer, ok bool) {
	if len(cell) < 1 || cell[0] != PointerTag {
		return Pointer{}, false
	}
	if len(cell) < PointerSize {
		return Pointer{}, false
	}
	return Pointer{
		FileID: encoding.DecodeFixed64(cell[1:9]),
		Offset: encoding.DecodeFixed64(cell[9:17]),
	}, true
}

// EncodeInline tags value as an inline SST value cell.
func EncodeInline(dst, value []byte) []byte {
	dst = append(dst, InlineTag)
	return append(dst, value...)
}

// DecodeInline strips the inline tag from a value cell. ok is false if the
// cell is tagged as a pointer rather than inline.
func DecodeInline(cell []byte) (value []byte, ok bool) {
	if len(cell) < 1 || cell[0] != InlineTag {
		return nil, false
	}
	return cell[1:], true
}

// FileName returns the value log file name for the given file ID.
func FileName(fileID uint64) string {
	return fmt.Sprintf("%06d.vlog", fileID)
}

// Writer appends key/value records to one value log file.
type Writer struct {
	fileID uint64
	f      vfs.WritableFile
	offset uint64
}

// Create creates (truncating if present) the value log file for fileID.
func Create(fs vfs.FS, dir string, fileID uint64) (*Writer, error) {
	f, err := fs.Create(dir + "/" + FileName(fileID))
	if err != nil {
		return nil, fmt.Errorf("vlog: create: %w", errs.ErrIO)
	}
	return &Writer{fileID: fileID, f: f}, nil
}

// Append writes one key/value record and fsyncs it, returning a Pointer
// to where it landed.
func (w *Writer) Append(key, value []byte) (Pointer, error) {
	payload := encoding.AppendLengthPrefixedSlice(make([]byte, 0, len(key)+len(value)+5), key)
	payload = append(payload, value...)

	rec := recordlog.AppendRecord(nil, payload)
	ptr := Pointer{FileID: w.fileID, Offset: w.offset}

	if _, err := w.f.Write(rec); err != nil {
		return Pointer{}, fmt.Errorf("vlog: append: %w", errs.ErrIO)
	}
	if err := w.f.Sync(); err != nil {
		return Pointer{}, fmt.Errorf("vlog: sync: %w", errs.ErrIO)
	}
	w.offset += uint64(len(rec))
	return ptr, nil
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() uint64 { return w.offset }

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Reader answers point reads against value log files within dir.
type Reader struct {
	fs  vfs.FS
	dir string
}

// NewReader creates a Reader rooted at dir.
func NewReader(fs vfs.FS, dir string) *Reader {
	return &Reader{fs: fs, dir: dir}
}

// Get reads the key/value record at ptr and returns the value.
func (r *Reader) Get(ptr Pointer) ([]byte, error) {
	f, err := r.fs.OpenRandomAccess(r.dir + "/" + FileName(ptr.FileID))
	if err != nil {
		return nil, fmt.Errorf("vlog: open %s: %w", FileName(ptr.FileID), errs.ErrIO)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, recordlog.HeaderSize)
	if _, err := f.ReadAt(header, int64(ptr.Offset)); err != nil {
		return nil, fmt.Errorf("vlog: read header: %w", errs.ErrIO)
	}
	wantSum := encoding.DecodeFixed64(header[0:8])
	length := encoding.DecodeFixed32(header[8:12])

	payload := make([]byte, length)
	if _, err := f.ReadAt(payload, int64(ptr.Offset)+int64(recordlog.HeaderSize)); err != nil {
		return nil, fmt.Errorf("vlog: read payload: %w", errs.ErrIO)
	}

	if !checksum.Verify(payload, wantSum) {
		return nil, fmt.Errorf("vlog: %w", errs.ErrChecksumMismatch)
	}

	_, n, err := encoding.DecodeLengthPrefixedSlice(payload)
	if err != nil {
		return nil, fmt.Errorf("vlog: decode key: %w", errs.ErrDecode)
	}
	return payload[n:], nil
}

// Iterate walks every key/value record in the value log file for fileID in
// order, calling fn with the key, value, and the record's starting offset
// (for building a fresh Pointer during garbage collection). Iteration
// stops cleanly at the first truncated trailing record.
func Iterate(fs vfs.FS, dir string, fileID uint64, fn func(key, value []byte, offset uint64) error) error {
	f, err := fs.Open(dir + "/" + FileName(fileID))
	if err != nil {
		return fmt.Errorf("vlog: open for iterate: %w", errs.ErrIO)
	}
	defer func() { _ = f.Close() }()

	r := recordlog.NewReader(f)
	var offset uint64
	for {
		payload, err := r.Next()
		if err == io.EOF || err == recordlog.ErrTruncated {
			return nil
		}
		if err != nil {
			return err
		}
		recLen := uint64(recordlog.HeaderSize + len(payload))

		key, n, err := encoding.DecodeLengthPrefixedSlice(payload)
		if err != nil {
			return fmt.Errorf("vlog: decode key: %w", errs.ErrDecode)
		}
		value := payload[n:]

		if err := fn(key, value, offset); err != nil {
			return err
		}
		offset += recLen
	}
}
