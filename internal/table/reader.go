package table

import (
	"fmt"

	"github.com/crwen/ckv/internal/block"
	"github.com/crwen/ckv/internal/checksum"
	"github.com/crwen/ckv/internal/compression"
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
	"github.com/crwen/ckv/internal/filter"
	"github.com/crwen/ckv/internal/iterator"
	"github.com/crwen/ckv/internal/vfs"
)

// Reader opens and serves reads against one SST file.
type Reader struct {
	f      vfs.RandomAccessFile
	index  *block.Block
	filter *filter.Reader
}

// Open opens the SST file at path and loads its footer, index block, and
// filter block.
func Open(fs vfs.FS, path string) (*Reader, error) {
	f, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, errs.ErrIO)
	}

	size := f.Size()
	if size < int64(block.FooterSize) {
		_ = f.Close()
		return nil, fmt.Errorf("table: %s too small for footer: %w", path, errs.ErrDecode)
	}

	footerBuf := make([]byte, block.FooterSize)
	if _, err := f.ReadAt(footerBuf, size-int64(block.FooterSize)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("table: read footer: %w", errs.ErrIO)
	}
	footer, err := block.DecodeFooter(footerBuf)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	indexRaw := make([]byte, footer.IndexSize)
	if _, err := f.ReadAt(indexRaw, int64(footer.IndexOffset)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("table: read index block: %w", errs.ErrIO)
	}
	indexBlk, err := block.Parse(indexRaw, dbformat.CompareInternalKeys)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	filterRaw := make([]byte, footer.FilterSize)
	if _, err := f.ReadAt(filterRaw, int64(footer.FilterOffset)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("table: read filter block: %w", errs.ErrIO)
	}
	if len(filterRaw) < 8 {
		_ = f.Close()
		return nil, fmt.Errorf("table: truncated filter block: %w", errs.ErrDecode)
	}
	filterBody := filterRaw[:len(filterRaw)-8]
	wantSum := encoding.DecodeFixed64(filterRaw[len(filterRaw)-8:])
	if !checksum.Verify(filterBody, wantSum) {
		_ = f.Close()
		return nil, fmt.Errorf("table: filter block: %w", errs.ErrChecksumMismatch)
	}
	filterReader := filter.NewReader(filterBody)

	return &Reader{f: f, index: indexBlk, filter: filterReader}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

func (r *Reader) readDataBlock(h block.Handle) (*block.Block, error) {
	raw := make([]byte, h.Size)
	if _, err := r.f.ReadAt(raw, int64(h.Offset)); err != nil {
		return nil, fmt.Errorf("table: read data block: %w", errs.ErrIO)
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("table: empty data block: %w", errs.ErrDecode)
	}
	ctype := compression.Type(raw[0])
	decompressed, err := compression.Decompress(ctype, raw[1:])
	if err != nil {
		return nil, fmt.Errorf("table: decompress data block: %w", err)
	}
	return block.Parse(decompressed, dbformat.CompareInternalKeys)
}

// Get looks up internalKey within this file's covered range. found is
// false if no entry exists. The filter block may be consulted first to
// skip the data-block read entirely when the key is definitely absent.
func (r *Reader) Get(internalKey []byte) (value []byte, found bool, err error) {
	userKey := dbformat.ExtractUserKey(internalKey)
	if !r.filter.MayContain(userKey) {
		return nil, false, nil
	}

	idxIt := r.index.NewIterator()
	idxIt.Seek(internalKey)
	if !idxIt.Valid() {
		return nil, false, nil
	}
	handle, decErr := block.DecodeHandle(idxIt.Value())
	if decErr != nil {
		return nil, false, decErr
	}

	blk, err := r.readDataBlock(handle)
	if err != nil {
		return nil, false, err
	}
	it := blk.NewIterator()
	it.Seek(internalKey)
	if !it.Valid() {
		return nil, false, nil
	}
	if dbformat.CompareInternalKeys(it.Key(), internalKey) != 0 {
		// Not an exact hit on this internal key, but Get callers pass a
		// seek key with the seeking sequence/type, so compare only the
		// user key for a real "found" signal at a different sequence.
		if dbformat.BytewiseCompare(dbformat.ExtractUserKey(it.Key()), userKey) != 0 {
			return nil, false, nil
		}
	}
	return it.Value(), true, nil
}

// NewIterator returns an iterator over every (internalKey, value) entry in
// the file, reading data blocks on demand as the iterator crosses block
// boundaries.
func (r *Reader) NewIterator() iterator.Iterator {
	return &tableIterator{reader: r, idxIt: r.index.NewIterator()}
}

type tableIterator struct {
	reader *Reader
	idxIt  iterator.Iterator
	blk    *block.Block
	blkIt  iterator.Iterator
	err    error
}

func (it *tableIterator) loadBlockAt(idxValid bool) {
	if !idxValid {
		it.blk, it.blkIt = nil, nil
		return
	}
	handle, err := block.DecodeHandle(it.idxIt.Value())
	if err != nil {
		it.err = err
		it.blk, it.blkIt = nil, nil
		return
	}
	blk, err := it.reader.readDataBlock(handle)
	if err != nil {
		it.err = err
		it.blk, it.blkIt = nil, nil
		return
	}
	it.blk = blk
	it.blkIt = blk.NewIterator()
}

func (it *tableIterator) Valid() bool {
	return it.blkIt != nil && it.blkIt.Valid()
}

func (it *tableIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.blkIt.Key()
}

func (it *tableIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.blkIt.Value()
}

func (it *tableIterator) SeekToFirst() {
	it.idxIt.SeekToFirst()
	it.loadBlockAt(it.idxIt.Valid())
	if it.blkIt != nil {
		it.blkIt.SeekToFirst()
	}
}

func (it *tableIterator) SeekToLast() {
	it.idxIt.SeekToLast()
	it.loadBlockAt(it.idxIt.Valid())
	if it.blkIt != nil {
		it.blkIt.SeekToLast()
	}
}

func (it *tableIterator) Seek(target []byte) {
	it.idxIt.Seek(target)
	it.loadBlockAt(it.idxIt.Valid())
	if it.blkIt != nil {
		it.blkIt.Seek(target)
		if !it.blkIt.Valid() {
			it.advanceBlock()
		}
	}
}

func (it *tableIterator) advanceBlock() {
	it.idxIt.Next()
	it.loadBlockAt(it.idxIt.Valid())
	if it.blkIt != nil {
		it.blkIt.SeekToFirst()
	}
}

func (it *tableIterator) Next() {
	if it.blkIt == nil {
		return
	}
	it.blkIt.Next()
	if !it.blkIt.Valid() {
		it.advanceBlock()
	}
}

func (it *tableIterator) Prev() {
	if it.blkIt == nil {
		return
	}
	it.blkIt.Prev()
	if !it.blkIt.Valid() {
		it.idxIt.Prev()
		it.loadBlockAt(it.idxIt.Valid())
		if it.blkIt != nil {
			it.blkIt.SeekToLast()
		}
	}
}

func (it *tableIterator) Error() error { return it.err }
