package block

import (
	"fmt"

	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/iterator"
)

// Block is a parsed, checksum-verified block ready for lookup/iteration.
type Block struct {
	entries []byte   // the raw entry bytes, offsets[i]..offsets[i+1]
	offsets []uint32 // entry start offsets into entries, ascending
	cmp     func(a, b []byte) int
}

// Parse verifies the trailing checksum and decodes the offset array,
// returning a Block ready for Seek/iteration. data is the full block
// (entries + offsets + count + checksum), already decompressed.
func Parse(data []byte, cmp func(a, b []byte) int) (*Block, error) {
	if len(data) < 12 {
		return nil, ErrTruncatedBlock
	}
	sumOffset := len(data) - 8
	want := encoding.DecodeFixed64(data[sumOffset:])
	if !checksum.Verify(data[:sumOffset], want) {
		return nil, fmt.Errorf("block: %w", errs.ErrChecksumMismatch)
	}

	countOffset := sumOffset - 4
	count := int(encoding.DecodeFixed32(data[countOffset:sumOffset]))
	offsetsStart := countOffset - count*4
	if offsetsStart < 0 {
		return nil, ErrTruncatedBlock
	}

	offsets := make([]uint32, count)
	for i := 0; i < count; i++ {
		offsets[i] = encoding.DecodeFixed32(data[offsetsStart+i*4:])
	}

	return &Block{
		entries: data[:offsetsStart],
		offsets: offsets,
		cmp:     cmp,
	}, nil
}

// NumEntries returns the number of entries in the block.
func (b *Block) NumEntries() int {
	return len(b.offsets)
}

func (b *Block) entryAt(i int) (key, value []byte) {
	start := b.offsets[i]
	data := b.entries[start:]
	key, n, err := encoding.DecodeLengthPrefixedSlice(data)
	if err != nil {
		return nil, nil
	}
	value, _, err = encoding.DecodeLengthPrefixedSlice(data[n:])
	if err != nil {
		return nil, nil
	}
	return key, value
}

// seekIndex returns the smallest index i such that key(i) >= target, or
// len(offsets) if no such entry exists.
func (b *Block) seekIndex(target []byte) int {
	lo, hi := 0, len(b.offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		k, _ := b.entryAt(mid)
		if b.cmp(k, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// NewIterator returns an iterator over the block's entries in key order.
func (b *Block) NewIterator() iterator.Iterator {
	return &blockIterator{block: b, idx: -1}
}

type blockIterator struct {
	block *Block
	idx   int
}

func (it *blockIterator) Valid() bool {
	return it.idx >= 0 && it.idx < len(it.block.offsets)
}

func (it *blockIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	k, _ := it.block.entryAt(it.idx)
	return k
}

func (it *blockIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	_, v := it.block.entryAt(it.idx)
	return v
}

func (it *blockIterator) SeekToFirst() { it.idx = 0 }

func (it *blockIterator) SeekToLast() { it.idx = len(it.block.offsets) - 1 }

func (it *blockIterator) Seek(target []byte) { it.idx = it.block.seekIndex(target) }

func (it *blockIterator) Next() {
	if it.idx < len(it.block.offsets) {
		it.idx++
	}
}

func (it *blockIterator) Prev() {
	if it.idx >= 0 {
		it.idx--
	}
}

func (it *blockIterator) Error() error { return nil }
