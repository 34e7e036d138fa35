// Package filter implements the cache-line-aligned bloom filter attached
// to each SST's filter block: one bit array per filter, probed with a set
// of re-hashes derived from a single XXH3-64 hash per key so a lookup only
// ever touches one cache line.
package filter

import (
	"math"

	"github.com/crwen/ckv/internal/checksum"
)

// CacheLineSize is the size, in bytes, of one probe block. Every key's
// probe bits all land within a single CacheLineSize-aligned block so a
// MayContain check never costs more than one cache-line fetch.
const CacheLineSize = 64

// bitsPerBlock is the number of bits in one cache-line-sized block.
const bitsPerBlock = CacheLineSize * 8

// BitsPerKeyDefault is the default amortized bits-per-key the builder uses
// when none is specified. At 10 bits/key the false-positive rate is
// approximately 1%.
const BitsPerKeyDefault = 10

// Builder accumulates key hashes and produces the encoded filter block.
type Builder struct {
	bitsPerKey int
	hashes     []uint64
}

// NewBuilder creates a Builder targeting bitsPerKey amortized bits per key.
func NewBuilder(bitsPerKey int) *Builder {
	if bitsPerKey <= 0 {
		bitsPerKey = BitsPerKeyDefault
	}
	return &Builder{bitsPerKey: bitsPerKey}
}

// Add records a key to be included in the filter.
func (b *Builder) Add(key []byte) {
	b.hashes = append(b.hashes, checksum.Of(key))
}

// NumKeys returns the number of keys added so far.
func (b *Builder) NumKeys() int {
	return len(b.hashes)
}

// Reset clears the builder so it can be reused for the next filter block.
func (b *Builder) Reset() {
	b.hashes = b.hashes[:0]
}

// numProbes picks the number of probe bits per key for a target
// bits-per-key, following the standard bloom-filter optimum of
// ln(2) * bits_per_key, clamped to a sane range.
func numProbes(bitsPerKey int) int {
	n := int(math.Round(float64(bitsPerKey) * 0.69314718056))
	if n < 1 {
		n = 1
	}
	if n > 30 {
		n = 30
	}
	return n
}

// Finish encodes the accumulated keys into a filter block.
//
// Layout: [u32 numProbes][u32 numBlocks][data: numBlocks*CacheLineSize bytes]
func (b *Builder) Finish() []byte {
	numKeys := len(b.hashes)
	if numKeys == 0 {
		numKeys = 1
	}
	probes := numProbes(b.bitsPerKey)

	numBlocks := (numKeys*b.bitsPerKey + bitsPerBlock - 1) / bitsPerBlock
	if numBlocks == 0 {
		numBlocks = 1
	}

	data := make([]byte, 8+numBlocks*CacheLineSize)
	putU32(data[0:4], uint32(probes))
	putU32(data[4:8], uint32(numBlocks))
	body := data[8:]

	for _, h := range b.hashes {
		addHash(body, numBlocks, probes, h)
	}

	return data
}

// addHash sets the probe bits for hash h within the filter's data array.
// fastRange32 picks a block from the high half of h; within that block,
// double hashing (start at the low half, step by the high half) sets
// `probes` bits.
func addHash(data []byte, numBlocks, probes int, h uint64) {
	block := fastRange32(uint32(h>>32), uint32(numBlocks))
	blockOffset := block * CacheLineSize

	lo := uint32(h)
	hi := uint32(h >> 32)
	for i := 0; i < probes; i++ {
		bitPos := lo % bitsPerBlock
		byteIdx := blockOffset + int(bitPos/8)
		data[byteIdx] |= 1 << (bitPos % 8)
		lo += hi
	}
}

// fastRange32 maps a uniformly-distributed uint32 x into [0, n) without a
// division, using the high bits of the 64-bit product (Lemire's method).
func fastRange32(x uint32, n uint32) int {
	return int((uint64(x) * uint64(n)) >> 32)
}

func putU32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func getU32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}

// Reader answers MayContain queries against an encoded filter block.
type Reader struct {
	probes    int
	numBlocks int
	data      []byte
}

// NewReader decodes a filter block produced by Builder.Finish.
func NewReader(encoded []byte) *Reader {
	if len(encoded) < 8 {
		return &Reader{}
	}
	return &Reader{
		probes:    int(getU32(encoded[0:4])),
		numBlocks: int(getU32(encoded[4:8])),
		data:      encoded[8:],
	}
}

// MayContain reports whether key might be present. False positives are
// possible; false negatives are not.
func (r *Reader) MayContain(key []byte) bool {
	if r.numBlocks == 0 || r.probes == 0 {
		return true
	}
	h := checksum.Of(key)
	block := fastRange32(uint32(h>>32), uint32(r.numBlocks))
	blockOffset := block * CacheLineSize
	if blockOffset+CacheLineSize > len(r.data) {
		return true
	}

	lo := uint32(h)
	hi := uint32(h >> 32)
	for i := 0; i < r.probes; i++ {
		bitPos := lo % bitsPerBlock
		byteIdx := blockOffset + int(bitPos/8)
		if r.data[byteIdx]&(1<<(bitPos%8)) == 0 {
			return false
		}
		lo += hi
	}
	return true
}
