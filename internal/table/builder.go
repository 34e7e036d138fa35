// Package table implements the SST (sorted string table) file format:
// builder, reader, and the table cache that keeps open SST readers warm.
//
// File layout: [data block 0]...[data block K-1][filter block][index
// block][16-byte footer]. Every data block and the index block are
// internal/block-encoded (entries + offset array + count + checksum); the
// filter block is the raw bloom filter encoding plus its own trailing
// checksum. The footer is four fixed-width u32 fields locating the filter
// and index blocks — no magic number, no format-version byte.
package table

import (
	"fmt"
	"io"

	"github.com/crwen/ckv/internal/block"
	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/compression"
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/filter"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	BlockSize        int
	FilterBitsPerKey int
	Compression      compression.Type
}

// DefaultBuilderOptions returns the engine's default SST build settings.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		BlockSize:        4096,
		FilterBitsPerKey: filter.BitsPerKeyDefault,
		Compression:      compression.NoCompression,
	}
}

// Builder writes one SST file in key order.
type Builder struct {
	w    io.Writer
	opts BuilderOptions

	dataBlock   *block.Builder
	indexBlock  *block.Builder
	filter      *filter.Builder
	lastKey     []byte
	pendingFlag bool
	pendingHdl  block.Handle

	offset     uint32
	numEntries int
	finished   bool
}

// NewBuilder creates a Builder writing to w.
func NewBuilder(w io.Writer, opts BuilderOptions) *Builder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	return &Builder{
		w:          w,
		opts:       opts,
		dataBlock:  block.NewBuilder(),
		indexBlock: block.NewBuilder(),
		filter:     filter.NewBuilder(opts.FilterBitsPerKey),
	}
}

// Add appends one (internalKey, value) entry. Keys must be added in
// strictly increasing order.
func (b *Builder) Add(internalKey, value []byte) error {
	if b.finished {
		return fmt.Errorf("table: add after finish: %w", errs.ErrDecode)
	}
	if b.pendingFlag {
		b.indexBlock.Add(b.lastKey, b.pendingHdl.AppendTo(nil))
		b.pendingFlag = false
	}

	b.filter.Add(dbformat.ExtractUserKey(internalKey))
	b.dataBlock.Add(internalKey, value)
	b.lastKey = append(b.lastKey[:0], internalKey...)
	b.numEntries++

	if b.dataBlock.EstimatedSize() >= b.opts.BlockSize {
		return b.flushDataBlock()
	}
	return nil
}

func (b *Builder) flushDataBlock() error {
	if b.dataBlock.NumEntries() == 0 {
		return nil
	}
	raw := b.dataBlock.Finish()
	payload, err := compression.Compress(b.opts.Compression, raw)
	if err != nil {
		return fmt.Errorf("table: compress data block: %w", err)
	}
	payload = append([]byte{byte(b.opts.Compression)}, payload...)

	if _, err := b.w.Write(payload); err != nil {
		return fmt.Errorf("table: write data block: %w", errs.ErrIO)
	}

	b.pendingHdl = block.Handle{Offset: b.offset, Size: uint32(len(payload))}
	b.pendingFlag = true
	b.offset += uint32(len(payload))
	return nil
}

// NumEntries returns the number of entries added so far.
func (b *Builder) NumEntries() int { return b.numEntries }

// FileSize returns the number of bytes written to the underlying writer
// so far: the data blocks, plus the filter and index blocks once Finish
// has run. The 16-byte footer is never counted.
func (b *Builder) FileSize() uint32 { return b.offset }

// Finish flushes any pending data block, writes the filter block, the
// index block, and the footer.
func (b *Builder) Finish() error {
	if b.finished {
		return nil
	}
	b.finished = true

	if err := b.flushDataBlock(); err != nil {
		return err
	}
	if b.pendingFlag {
		b.indexBlock.Add(b.lastKey, b.pendingHdl.AppendTo(nil))
		b.pendingFlag = false
	}

	filterRaw := b.filter.Finish()
	filterSum := checksum.Of(filterRaw)
	filterBlock := encoding.AppendFixed64(append([]byte(nil), filterRaw...), filterSum)
	filterHandle := block.Handle{Offset: b.offset, Size: uint32(len(filterBlock))}
	if _, err := b.w.Write(filterBlock); err != nil {
		return fmt.Errorf("table: write filter block: %w", errs.ErrIO)
	}
	b.offset += uint32(len(filterBlock))

	indexRaw := b.indexBlock.Finish()
	indexHandle := block.Handle{Offset: b.offset, Size: uint32(len(indexRaw))}
	if _, err := b.w.Write(indexRaw); err != nil {
		return fmt.Errorf("table: write index block: %w", errs.ErrIO)
	}
	b.offset += uint32(len(indexRaw))

	footer := block.Footer{
		FilterOffset: filterHandle.Offset,
		FilterSize:   filterHandle.Size,
		IndexOffset:  indexHandle.Offset,
		IndexSize:    indexHandle.Size,
	}
	if _, err := b.w.Write(footer.Encode()); err != nil {
		return fmt.Errorf("table: write footer: %w", errs.ErrIO)
	}
	return nil
}
