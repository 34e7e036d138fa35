package compaction

import (
	"bytes"
	"testing"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/table"
	"github.com/crwen/ckv/internal/vfs"
)

func writeSST(t *testing.T, fs vfs.FS, dir string, number uint64, entries []struct {
	key   string
	seq   dbformat.SequenceNumber
	typ   dbformat.ValueType
	value string
}) *manifest.FileMetaData {
	t.Helper()
	path := dir + "/" + table.FileName(number)
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b := table.NewBuilder(f, table.DefaultBuilderOptions())

	var smallest, largest []byte
	for _, e := range entries {
		k := dbformat.NewInternalKey([]byte(e.key), e.seq, e.typ)
		if smallest == nil {
			smallest = append([]byte(nil), k...)
		}
		largest = append(largest[:0], k...)
		if err := b.Add(k, []byte(e.value)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &manifest.FileMetaData{Number: number, FileSize: uint64(b.FileSize()), Smallest: smallest, Largest: largest}
}

func newFileNumberSeq(start uint64) func() uint64 {
	n := start
	return func() uint64 {
		v := n
		n++
		return v
	}
}

func TestJobRunDropsObsoleteVersionsAndMergesOrder(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	input1 := writeSST(t, fs, dir, 1, []struct {
		key   string
		seq   dbformat.SequenceNumber
		typ   dbformat.ValueType
		value string
	}{
		{"a", 2, dbformat.TypeValue, "a-new"},
		{"c", 1, dbformat.TypeValue, "c-old"},
	})
	input2 := writeSST(t, fs, dir, 2, []struct {
		key   string
		seq   dbformat.SequenceNumber
		typ   dbformat.ValueType
		value string
	}{
		{"a", 1, dbformat.TypeValue, "a-old"},
		{"b", 1, dbformat.TypeValue, "b-only"},
	})

	c := &Compaction{
		Level:       0,
		OutputLevel: 1,
		Inputs:      []*manifest.FileMetaData{input1, input2},
		IsBaseLevel: true,
	}

	j := NewJob(fs, dir, JobOptions{
		BuilderOptions: table.DefaultBuilderOptions(),
		TargetFileSize: 1 << 20,
		NewFileNumber:  newFileNumberSeq(100),
	})
	ve, err := j.Run(c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ve.DeletedFiles) != 2 {
		t.Fatalf("DeletedFiles = %+v, want 2 entries (both inputs)", ve.DeletedFiles)
	}
	if len(ve.NewFiles) != 1 {
		t.Fatalf("NewFiles = %+v, want 1 output file", ve.NewFiles)
	}

	out := ve.NewFiles[0]
	if out.Level != 1 {
		t.Fatalf("output Level = %d, want 1", out.Level)
	}

	r, err := table.Open(fs, dir+"/"+table.FileName(out.Meta.Number))
	if err != nil {
		t.Fatalf("table.Open output: %v", err)
	}
	defer r.Close()

	it := r.NewIterator()
	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(dbformat.ExtractUserKey(it.Key()))+"="+string(it.Value()))
	}
	want := []string{"a=a-new", "b=b-only", "c=c-old"}
	if len(got) != len(want) {
		t.Fatalf("output entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output entries = %v, want %v", got, want)
		}
	}
}

func TestJobRunDropsTombstoneAtBaseLevel(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	input := writeSST(t, fs, dir, 1, []struct {
		key   string
		seq   dbformat.SequenceNumber
		typ   dbformat.ValueType
		value string
	}{
		{"a", 1, dbformat.TypeDeletion, ""},
		{"b", 1, dbformat.TypeValue, "live"},
	})

	c := &Compaction{Level: 0, OutputLevel: 1, Inputs: []*manifest.FileMetaData{input}, IsBaseLevel: true}
	j := NewJob(fs, dir, JobOptions{BuilderOptions: table.DefaultBuilderOptions(), TargetFileSize: 1 << 20, NewFileNumber: newFileNumberSeq(1)})
	ve, err := j.Run(c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ve.NewFiles) != 1 {
		t.Fatalf("NewFiles = %+v, want 1", ve.NewFiles)
	}

	r, err := table.Open(fs, dir+"/"+table.FileName(ve.NewFiles[0].Meta.Number))
	if err != nil {
		t.Fatalf("table.Open: %v", err)
	}
	defer r.Close()
	it := r.NewIterator()
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if bytes.Equal(dbformat.ExtractUserKey(it.Key()), []byte("a")) {
			t.Fatalf("tombstone for 'a' survived compaction at base level")
		}
		count++
	}
	if count != 1 {
		t.Fatalf("output has %d entries, want 1 (only 'b')", count)
	}
}

func TestJobRunKeepsTombstoneWhenNotBaseLevel(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	input := writeSST(t, fs, dir, 1, []struct {
		key   string
		seq   dbformat.SequenceNumber
		typ   dbformat.ValueType
		value string
	}{
		{"a", 1, dbformat.TypeDeletion, ""},
	})

	c := &Compaction{Level: 0, OutputLevel: 1, Inputs: []*manifest.FileMetaData{input}, IsBaseLevel: false}
	j := NewJob(fs, dir, JobOptions{BuilderOptions: table.DefaultBuilderOptions(), TargetFileSize: 1 << 20, NewFileNumber: newFileNumberSeq(1)})
	ve, err := j.Run(c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ve.NewFiles) != 1 {
		t.Fatalf("NewFiles = %+v, want 1 (tombstone must be carried downward)", ve.NewFiles)
	}
}

func TestJobRunAllInputsEmptyProducesNoOutput(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	c := &Compaction{Level: 0, OutputLevel: 1, Inputs: nil, IsBaseLevel: true}
	j := NewJob(fs, dir, JobOptions{BuilderOptions: table.DefaultBuilderOptions(), TargetFileSize: 1 << 20, NewFileNumber: newFileNumberSeq(1)})
	ve, err := j.Run(c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ve.NewFiles) != 0 {
		t.Fatalf("NewFiles = %+v, want none", ve.NewFiles)
	}
}
