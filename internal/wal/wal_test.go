package wal

import (
	"bytes"
	"os"
	"testing"

	"github.com/crwen/ckv/internal/batch"
	"github.com/crwen/ckv/internal/vfs"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	w, err := Create(fs, dir, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	wb1 := batch.New()
	wb1.Put([]byte("a"), []byte("1"))
	wb1.Delete([]byte("b"))
	if err := w.Append(wb1); err != nil {
		t.Fatalf("Append 1: %v", err)
	}

	wb2 := batch.New()
	wb2.Put([]byte("c"), []byte("2"))
	if err := w.Append(wb2); err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var replayed []*batch.WriteBatch
	err = Replay(fs, dir, 1, func(wb *batch.WriteBatch) error {
		replayed = append(replayed, wb)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("Replay visited %d batches, want 2", len(replayed))
	}
	if len(replayed[0].Ops()) != 2 || len(replayed[1].Ops()) != 1 {
		t.Fatalf("replayed op counts = %d,%d, want 2,1", len(replayed[0].Ops()), len(replayed[1].Ops()))
	}
	ops := replayed[0].Ops()
	if !bytes.Equal(ops[0].Key, []byte("a")) || !bytes.Equal(ops[0].Value, []byte("1")) {
		t.Fatalf("ops[0] = %+v, want Put(a,1)", ops[0])
	}
	if !bytes.Equal(ops[1].Key, []byte("b")) {
		t.Fatalf("ops[1].Key = %q, want b", ops[1].Key)
	}
}

func TestReplayMissingFileIsNoop(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	called := false
	err := Replay(fs, dir, 99, func(*batch.WriteBatch) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Replay on missing file: %v", err)
	}
	if called {
		t.Fatalf("Replay invoked callback for a nonexistent WAL file")
	}
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	w, err := Create(fs, dir, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	wb := batch.New()
	wb.Put([]byte("k"), []byte("v"))
	if err := w.Append(wb); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := dir + "/" + FileName(2)
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(name, data[:len(data)-3], 0o644); err != nil {
		t.Fatalf("WriteFile (truncate): %v", err)
	}

	var count int
	err = Replay(fs, dir, 2, func(*batch.WriteBatch) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay over truncated tail returned error, want clean stop: %v", err)
	}
	if count != 0 {
		t.Fatalf("Replay visited %d batches from a truncated single record, want 0", count)
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	w, err := Create(fs, dir, 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := dir + "/" + FileName(3)
	if !fs.Exists(name) {
		t.Fatalf("WAL file does not exist before Remove")
	}
	if err := Remove(fs, dir, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists(name) {
		t.Fatalf("WAL file still exists after Remove")
	}
}
