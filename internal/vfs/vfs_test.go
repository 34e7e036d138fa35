package vfs

import (
	"bytes"
	"testing"
)

func TestCreateTruncatesExistingFile(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/f"

	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create (1st): %v", err)
	}
	if _, err := f.Write([]byte("original content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create (2nd): %v", err)
	}
	if _, err := f2.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	defer rf.Close()
	if rf.Size() != 1 {
		t.Fatalf("Size after Create-over-Create = %d, want 1 (must truncate)", rf.Size())
	}
}

func TestOpenAppendPreservesExistingContent(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/f"

	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.Write([]byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := fs.OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := f2.Write([]byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rf, err := fs.OpenRandomAccess(path)
	if err != nil {
		t.Fatalf("OpenRandomAccess: %v", err)
	}
	defer rf.Close()
	buf := make([]byte, rf.Size())
	if _, err := rf.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(buf, []byte("firstsecond")) {
		t.Fatalf("content = %q, want %q", buf, "firstsecond")
	}
}

func TestOpenAppendCreatesIfMissing(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/new"

	f, err := fs.OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend on missing file: %v", err)
	}
	defer f.Close()
	if !fs.Exists(path) {
		t.Fatalf("OpenAppend did not create the file")
	}
}

func TestExistsAndRemove(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/f"

	if fs.Exists(path) {
		t.Fatalf("Exists on nonexistent file = true, want false")
	}
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.Close()
	if !fs.Exists(path) {
		t.Fatalf("Exists after Create = false, want true")
	}
	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists(path) {
		t.Fatalf("Exists after Remove = true, want false")
	}
}

func TestLockPreventsSecondAcquisition(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/LOCK"

	l1, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock (1st): %v", err)
	}
	defer l1.Close()

	if _, err := fs.Lock(path); err == nil {
		t.Fatalf("second Lock on the same file succeeded, want an error")
	}
}

func TestLockReleasedOnClose(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	path := dir + "/LOCK"

	l1, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	defer l2.Close()
}

func TestListDir(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		f, err := fs.Create(dir + "/" + name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		f.Close()
	}

	names, err := fs.ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("ListDir returned %d entries, want 3", len(names))
	}
}
