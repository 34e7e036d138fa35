package vlog

import (
	"bytes"
	"testing"

	"github.com/crwen/ckv/internal/vfs"
)

func TestAppendAndGetRoundTrip(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	w, err := Create(fs, dir, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ptr1, err := w.Append([]byte("k1"), []byte("hello"))
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	ptr2, err := w.Append([]byte("k2"), []byte("world, a longer value"))
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(fs, dir)
	v1, err := r.Get(ptr1)
	if err != nil {
		t.Fatalf("Get ptr1: %v", err)
	}
	if !bytes.Equal(v1, []byte("hello")) {
		t.Fatalf("Get ptr1 = %q, want %q", v1, "hello")
	}
	v2, err := r.Get(ptr2)
	if err != nil {
		t.Fatalf("Get ptr2: %v", err)
	}
	if !bytes.Equal(v2, []byte("world, a longer value")) {
		t.Fatalf("Get ptr2 = %q, want %q", v2, "world, a longer value")
	}
}

func TestInlineTagRoundTrip(t *testing.T) {
	cell := EncodeInline(nil, []byte("small"))
	val, ok := DecodeInline(cell)
	if !ok {
		t.Fatalf("DecodeInline: ok = false, want true")
	}
	if !bytes.Equal(val, []byte("small")) {
		t.Fatalf("DecodeInline = %q, want %q", val, "small")
	}
	if _, ok := DecodePointer(cell); ok {
		t.Fatalf("DecodePointer on an inline cell: ok = true, want false")
	}
}

func TestPointerTagRoundTrip(t *testing.T) {
	p := Pointer{FileID: 7, Offset: 1234}
	cell := p.Encode(nil)

	decoded, ok := DecodePointer(cell)
	if !ok {
		t.Fatalf("DecodePointer: ok = false, want true")
	}
	if decoded != p {
		t.Fatalf("DecodePointer = %+v, want %+v", decoded, p)
	}
	if _, ok := DecodeInline(cell); ok {
		t.Fatalf("DecodeInline on a pointer cell: ok = true, want false")
	}
}

func TestIterateWalksEveryRecord(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	w, err := Create(fs, dir, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	vals := [][]byte{[]byte("1"), []byte("22"), []byte("333")}
	for i := range keys {
		if _, err := w.Append(keys[i], vals[i]); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var gotKeys, gotVals [][]byte
	err = Iterate(fs, dir, 5, func(key, value []byte, offset uint64) error {
		gotKeys = append(gotKeys, append([]byte(nil), key...))
		gotVals = append(gotVals, append([]byte(nil), value...))
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(gotKeys) != len(keys) {
		t.Fatalf("Iterate visited %d records, want %d", len(gotKeys), len(keys))
	}
	for i := range keys {
		if !bytes.Equal(gotKeys[i], keys[i]) || !bytes.Equal(gotVals[i], vals[i]) {
			t.Fatalf("record %d = (%q,%q), want (%q,%q)", i, gotKeys[i], gotVals[i], keys[i], vals[i])
		}
	}
}
