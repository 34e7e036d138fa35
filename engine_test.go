package ckv

// engine_test.go covers Open/Close, basic Put/Get/Delete, and recovery
// across a restart.

import (
	"bytes"
	"errors"
	"testing"

	"github.com/crwen/ckv/internal/errs"
)

func openTest(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfMissing = true
	e, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutGet(t *testing.T) {
	e := openTest(t)

	if err := e.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := e.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("Get = %q, want %q", got, "v1")
	}
}

func TestGetMissing(t *testing.T) {
	e := openTest(t)

	if _, err := e.Get([]byte("missing")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestOverwrite(t *testing.T) {
	e := openTest(t)

	if err := e.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := e.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put v2: %v", err)
	}
	got, err := e.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("Get = %q, want %q (latest write should win)", got, "v2")
	}
}

func TestDelete(t *testing.T) {
	e := openTest(t)

	if err := e.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.Get([]byte("k")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
	}
}

func TestLargeValueSeparatedThroughVlog(t *testing.T) {
	e := openTest(t)

	key := []byte("big")
	value := bytes.Repeat([]byte("x"), e.opts.KVSeparateThreshold*4)
	if err := e.Put(key, value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := e.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("Get returned %d bytes, want %d matching bytes", len(got), len(value))
	}
}

func TestManyKeysRoundTrip(t *testing.T) {
	e := openTest(t)

	const n = 500
	for i := 0; i < n; i++ {
		key := []byte{byte(i >> 8), byte(i)}
		val := bytes.Repeat([]byte{byte(i)}, 17)
		if err := e.Put(key, val); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		key := []byte{byte(i >> 8), byte(i)}
		want := bytes.Repeat([]byte{byte(i)}, 17)
		got, err := e.Get(key)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get %d = %x, want %x", i, got, want)
		}
	}
}

func TestRecoveryReplaysUncommittedWrites(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfMissing = true
	// Large enough that nothing is flushed during this test: everything
	// recovered must come from WAL replay, not an already-flushed SST.
	opts.MemtableSizeThreshold = 64 * 1024 * 1024

	e, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		if err := e.Put(key, []byte{byte(i), byte(i)}); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}
	if err := e.Delete([]byte{10}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		got, err := e2.Get(key)
		if i == 10 {
			if !errors.Is(err, errs.ErrNotFound) {
				t.Fatalf("Get(10) after recovery err = %v, want ErrNotFound", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Get(%d) after recovery: %v", i, err)
		}
		if !bytes.Equal(got, []byte{byte(i), byte(i)}) {
			t.Fatalf("Get(%d) after recovery = %x, want %x", i, got, []byte{byte(i), byte(i)})
		}
	}
}

func TestOpenErrorIfExists(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfMissing = true
	e, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e.Close()

	opts.ErrorIfExists = true
	if _, err := Open(dir, opts); err == nil {
		t.Fatalf("Open with ErrorIfExists on an existing dir: want error, got nil")
	}
}

func TestWriteAfterCloseIsRejected(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CreateIfMissing = true
	e, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Put([]byte("k"), []byte("v")); !errors.Is(err, errs.ErrClosed) {
		t.Fatalf("Put after Close err = %v, want ErrClosed", err)
	}
}
