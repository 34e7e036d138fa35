// Package memtable (this file) implements the active write buffer: a
// skip list keyed by internal key, storing one entry per (user key,
// sequence, type) triple.
//
// Entry encoding within the skip list key: [varint32 internalKeyLen]
// [internalKey][varint32 valueLen][value]. internalKey is
// user_key||big-endian(sequence<<8|type) as defined by internal/dbformat.
// Packing the whole entry into the skip list's single key lets lookups and
// iteration share one comparator and one allocation per entry.
package memtable

import (
	"sync/atomic"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/iterator"
)

// entryComparator orders skip-list entries by their embedded internal key.
func entryComparator(a, b []byte) int {
	ak := decodeEntryInternalKey(a)
	bk := decodeEntryInternalKey(b)
	return dbformat.CompareInternalKeys(ak, bk)
}

func decodeEntryInternalKey(entry []byte) []byte {
	ikey, _, err := encoding.DecodeLengthPrefixedSlice(entry)
	if err != nil {
		return nil
	}
	return ikey
}

func decodeEntryValue(entry []byte) []byte {
	_, n, err := encoding.DecodeLengthPrefixedSlice(entry)
	if err != nil {
		return nil
	}
	value, _, err := encoding.DecodeLengthPrefixedSlice(entry[n:])
	if err != nil {
		return nil
	}
	return value
}

// MemTable is the in-memory sorted write buffer. A single MemTable becomes
// read-only once it is rotated out by the engine for flushing; new writes
// always go to a fresh active MemTable.
type MemTable struct {
	list        *SkipList
	memoryUsage int64 // bytes of entry data added, approximate
}

// New creates an empty MemTable.
func New() *MemTable {
	return &MemTable{list: NewSkipList(entryComparator)}
}

// Add inserts a new internal-key entry. REQUIRES: no entry with an
// identical (user key, sequence, type) already exists — sequence numbers
// are allocated by the engine and are always unique per write.
func (m *MemTable) Add(userKey []byte, seq dbformat.SequenceNumber, t dbformat.ValueType, value []byte) {
	ikey := dbformat.NewInternalKey(userKey, seq, t)

	entry := make([]byte, 0, encoding.MaxVarint32Length+len(ikey)+encoding.MaxVarint32Length+len(value))
	entry = encoding.AppendLengthPrefixedSlice(entry, ikey)
	entry = encoding.AppendLengthPrefixedSlice(entry, value)

	m.list.Insert(entry)
	atomic.AddInt64(&m.memoryUsage, int64(len(entry)))
}

// Get looks up the most recent visible value for userKey at or before seq.
// found is false if no entry exists at or before seq. If the most recent
// visible entry is a tombstone, found is true and isDeleted is true.
func (m *MemTable) Get(userKey []byte, seq dbformat.SequenceNumber) (value []byte, found bool, isDeleted bool) {
	lookup := dbformat.NewInternalKey(userKey, seq, dbformat.ValueTypeForSeek)

	it := m.list.NewIterator()
	it.Seek(encoding.AppendLengthPrefixedSlice(nil, lookup))
	if !it.Valid() {
		return nil, false, false
	}

	ikey := decodeEntryInternalKey(it.Key())
	parsed, err := dbformat.ParseInternalKey(ikey)
	if err != nil {
		return nil, false, false
	}
	if dbformat.BytewiseCompare(parsed.UserKey, userKey) != 0 {
		return nil, false, false
	}

	switch parsed.Type {
	case dbformat.TypeDeletion:
		return nil, true, true
	case dbformat.TypeValue:
		return decodeEntryValue(it.Key()), true, false
	default:
		return nil, false, false
	}
}

// ApproximateMemoryUsage returns the approximate number of bytes of entry
// data added to the table (not counting skip-list node overhead).
func (m *MemTable) ApproximateMemoryUsage() int64 {
	return atomic.LoadInt64(&m.memoryUsage)
}

// Count returns the number of entries (including tombstones) in the table.
func (m *MemTable) Count() int64 {
	return m.list.Count()
}

// NewIterator returns an iterator over internal keys in ascending order.
func (m *MemTable) NewIterator() iterator.Iterator {
	return &memTableIterator{it: m.list.NewIterator()}
}

// memTableIterator adapts the skip-list Iterator to the engine-wide
// iterator.Iterator interface, decoding the packed entry on each access.
type memTableIterator struct {
	it *Iterator
}

func (mi *memTableIterator) Valid() bool { return mi.it.Valid() }

func (mi *memTableIterator) Key() []byte {
	if !mi.it.Valid() {
		return nil
	}
	return decodeEntryInternalKey(mi.it.Key())
}

func (mi *memTableIterator) Value() []byte {
	if !mi.it.Valid() {
		return nil
	}
	return decodeEntryValue(mi.it.Key())
}

func (mi *memTableIterator) SeekToFirst() { mi.it.SeekToFirst() }
func (mi *memTableIterator) SeekToLast()  { mi.it.SeekToLast() }

func (mi *memTableIterator) Seek(target []byte) {
	// target is a bare internal key; wrap it the way entries are wrapped so
	// the skip list's byte-level comparator still orders correctly.
	probe := encoding.AppendLengthPrefixedSlice(nil, target)
	mi.it.Seek(probe)
}

func (mi *memTableIterator) Next() { mi.it.Next() }
func (mi *memTableIterator) Prev() { mi.it.Prev() }
func (mi *memTableIterator) Error() error { return nil }
