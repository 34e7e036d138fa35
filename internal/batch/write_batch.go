// Package batch implements WriteBatch: a sequence of Put/Delete operations
// applied atomically (as one WAL record and one block of memtable inserts
// sharing a contiguous run of sequence numbers).
//
// Encoding: [u32 count][op_0]...[op_{count-1}], where each op is
// [u8 opType][varint32 keyLen][key][varint32 valueLen][value]; value is
// omitted (zero bytes) for a delete.
package batch

import (
	"fmt"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/encoding"
	"github.com/crwen/ckv/internal/errs"
)

// Op is one operation recorded in a WriteBatch.
type Op struct {
	Type  dbformat.ValueType
	Key   []byte
	Value []byte
}

// WriteBatch accumulates Put/Delete operations for atomic application.
type WriteBatch struct {
	ops []Op
}

// New creates an empty WriteBatch.
func New() *WriteBatch {
	return &WriteBatch{}
}

// Put records a write of key/value.
func (wb *WriteBatch) Put(key, value []byte) {
	wb.ops = append(wb.ops, Op{Type: dbformat.TypeValue, Key: key, Value: value})
}

// Delete records a tombstone for key.
func (wb *WriteBatch) Delete(key []byte) {
	wb.ops = append(wb.ops, Op{Type: dbformat.TypeDeletion, Key: key})
}

// Count returns the number of operations recorded.
func (wb *WriteBatch) Count() int {
	return len(wb.ops)
}

// Ops returns the recorded operations in insertion order.
func (wb *WriteBatch) Ops() []Op {
	return wb.ops
}

// Reset clears the batch for reuse.
func (wb *WriteBatch) Reset() {
	wb.ops = wb.ops[:0]
}

// Encode serializes the batch to its on-disk representation (the payload
// carried inside one WAL record).
func (wb *WriteBatch) Encode() []byte {
	out := encoding.AppendFixed32(nil, uint32(len(wb.ops)))
	for _, op := range wb.ops {
		out = append(out, byte(op.Type))
		out = encoding.AppendLengthPrefixedSlice(out, op.Key)
		if op.Type == dbformat.TypeValue {
			out = encoding.AppendLengthPrefixedSlice(out, op.Value)
		}
	}
	return out
}

// Decode parses a batch payload produced by Encode.
func Decode(data []byte) (*WriteBatch, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("batch: truncated header: %w", errs.ErrDecode)
	}
	count := int(encoding.DecodeFixed32(data[0:4]))
	data = data[4:]

	wb := &WriteBatch{ops: make([]Op, 0, count)}
	for i := 0; i < count; i++ {
		if len(data) < 1 {
			return nil, fmt.Errorf("batch: truncated op %d: %w", i, errs.ErrDecode)
		}
		t := dbformat.ValueType(data[0])
		data = data[1:]

		key, n, err := encoding.DecodeLengthPrefixedSlice(data)
		if err != nil {
			return nil, fmt.Errorf("batch: op %d key: %w", i, errs.ErrDecode)
		}
		data = data[n:]

		var value []byte
		if t == dbformat.TypeValue {
			value, n, err = encoding.DecodeLengthPrefixedSlice(data)
			if err != nil {
				return nil, fmt.Errorf("batch: op %d value: %w", i, errs.ErrDecode)
			}
			data = data[n:]
		}

		wb.ops = append(wb.ops, Op{Type: t, Key: key, Value: value})
	}
	return wb, nil
}
