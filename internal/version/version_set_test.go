package version

import (
	"testing"

	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/vfs"
)

func TestRecoverEmptyDirStartsAtFileNumberOne(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	vs, err := Recover(fs, dir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer vs.Close()

	if got := vs.NewFileNumber(); got != 1 {
		t.Fatalf("NewFileNumber() on fresh dir = %d, want 1", got)
	}
	if vs.LastSequence() != 0 {
		t.Fatalf("LastSequence() on fresh dir = %d, want 0", vs.LastSequence())
	}
	if vs.Current().NumFiles(0) != 0 {
		t.Fatalf("Current() on fresh dir has files, want none")
	}
}

func TestLogAndApplyInstallsNewVersion(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	vs, err := Recover(fs, dir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer vs.Close()

	ve := &manifest.VersionEdit{}
	ve.AddFile(0, manifest.FileMetaData{Number: 5, FileSize: 100, Smallest: []byte("a"), Largest: []byte("z")})
	if err := vs.LogAndApply(ve); err != nil {
		t.Fatalf("LogAndApply: %v", err)
	}

	if vs.Current().NumFiles(0) != 1 {
		t.Fatalf("Current() after LogAndApply has %d L0 files, want 1", vs.Current().NumFiles(0))
	}
}

func TestLogAndApplySurvivesRecover(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	vs, err := Recover(fs, dir)
	if err != nil {
		t.Fatalf("Recover (1st): %v", err)
	}
	ve := &manifest.VersionEdit{}
	ve.AddFile(0, manifest.FileMetaData{Number: 9, FileSize: 100, Smallest: []byte("a"), Largest: []byte("z")})
	ve.SetLastSequence(42)
	if err := vs.LogAndApply(ve); err != nil {
		t.Fatalf("LogAndApply: %v", err)
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	vs2, err := Recover(fs, dir)
	if err != nil {
		t.Fatalf("Recover (2nd): %v", err)
	}
	defer vs2.Close()

	if vs2.Current().NumFiles(0) != 1 {
		t.Fatalf("recovered VersionSet has %d L0 files, want 1", vs2.Current().NumFiles(0))
	}
	if vs2.LastSequence() != 42 {
		t.Fatalf("recovered LastSequence() = %d, want 42", vs2.LastSequence())
	}
}

func TestSetLastSequenceNeverGoesBackward(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	vs, err := Recover(fs, dir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer vs.Close()

	vs.SetLastSequence(100)
	vs.SetLastSequence(50)
	if vs.LastSequence() != 100 {
		t.Fatalf("LastSequence() = %d, want 100 (must not regress)", vs.LastSequence())
	}
}
