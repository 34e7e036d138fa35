package ckv

import (
	"bytes"
	"testing"
)

func TestIteratorOrderingAndTombstones(t *testing.T) {
	e := openTest(t)

	keys := [][]byte{[]byte("a"), []byte("c"), []byte("b"), []byte("d")}
	for _, k := range keys {
		if err := e.Put(k, append([]byte("v-"), k...)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	if err := e.Delete([]byte("c")); err != nil {
		t.Fatalf("Delete(c): %v", err)
	}

	it, err := e.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}

	want := []string{"a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("iterated keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iterated keys = %v, want %v", got, want)
		}
	}
}

func TestIteratorSurfacesLatestVersion(t *testing.T) {
	e := openTest(t)

	if err := e.Put([]byte("k"), []byte("old")); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	if err := e.Put([]byte("k"), []byte("new")); err != nil {
		t.Fatalf("Put new: %v", err)
	}

	it, err := e.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	it.SeekToFirst()
	if !it.Valid() {
		t.Fatalf("iterator empty, want one entry")
	}
	if !bytes.Equal(it.Value(), []byte("new")) {
		t.Fatalf("iterator value = %q, want %q", it.Value(), "new")
	}
	it.Next()
	if it.Valid() {
		t.Fatalf("expected exactly one live key, found another: %q", it.Key())
	}
}

func TestIteratorSeek(t *testing.T) {
	e := openTest(t)

	for _, k := range []string{"a", "b", "c", "d"} {
		if err := e.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	it, err := e.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	it.Seek([]byte("bb"))
	if !it.Valid() {
		t.Fatalf("Seek(bb): iterator invalid, want positioned at c")
	}
	if string(it.Key()) != "c" {
		t.Fatalf("Seek(bb) landed on %q, want %q", it.Key(), "c")
	}
}
