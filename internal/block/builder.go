package block

import (
	"fmt"

	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
)

// ErrTruncatedHandle is returned when a block handle cannot be decoded.
var ErrTruncatedHandle = fmt.Errorf("block: truncated handle: %w", errs.ErrDecode)

// ErrTruncatedBlock is returned when a block's trailer (offsets, count,
// checksum) cannot be decoded. A checksum that does not match is reported
// as errs.ErrChecksumMismatch instead.
var ErrTruncatedBlock = fmt.Errorf("block: truncated block: %w", errs.ErrDecode)

// Builder accumulates (key, value) entries in increasing key order and
// produces one encoded block.
//
// Per-entry encoding: [varint32 keyLen][key][varint32 valueLen][value].
// Keys passed to Add are internal keys for data blocks, and bare
// (lastKeyInBlock, Handle-bytes) pairs for the index block.
//
// Block encoding: entry_0 .. entry_{n-1}, followed by a trailing array of
// n big-endian u32 entry offsets, a big-endian u32 entry count, and a
// trailing big-endian u64 XXH3 checksum over everything before it.
type Builder struct {
	buf     []byte
	offsets []uint32
}

// NewBuilder creates an empty block builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends one entry to the block. Keys must be added in increasing
// order; the builder does not enforce this.
func (b *Builder) Add(key, value []byte) {
	b.offsets = append(b.offsets, uint32(len(b.buf)))
	b.buf = encoding.AppendLengthPrefixedSlice(b.buf, key)
	b.buf = encoding.AppendLengthPrefixedSlice(b.buf, value)
}

// NumEntries returns the number of entries added so far.
func (b *Builder) NumEntries() int {
	return len(b.offsets)
}

// EstimatedSize returns the approximate encoded size, for block-size budget
// decisions made by the caller before the block is actually finished.
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + len(b.offsets)*4 + 4 + 8
}

// Finish encodes the block, including its trailing offset array, entry
// count, and checksum, and resets the builder for reuse.
func (b *Builder) Finish() []byte {
	out := make([]byte, 0, b.EstimatedSize())
	out = append(out, b.buf...)
	for _, off := range b.offsets {
		out = encoding.AppendFixed32(out, off)
	}
	out = encoding.AppendFixed32(out, uint32(len(b.offsets)))
	sum := checksum.Of(out)
	out = encoding.AppendFixed64(out, sum)

	b.buf = b.buf[:0]
	b.offsets = b.offsets[:0]
	return out
}

// Reset clears the builder without producing output.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.offsets = b.offsets[:0]
}
