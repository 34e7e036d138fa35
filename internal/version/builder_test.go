package version

import (
	"testing"

	"github.com/crwen/ckv/internal/manifest"
)

func TestBuilderAppliesAddsAndDeletes(t *testing.T) {
	base := NewVersion()
	base.Levels[1] = append(base.Levels[1], fileRange(1, "a", "b", 100))

	ve := &manifest.VersionEdit{}
	ve.DeleteFile(1, 1)
	ve.AddFile(1, *fileRange(2, "c", "d", 200))

	b := NewBuilder(base)
	b.Apply(ve)
	out := b.Finish()

	if len(out.Levels[1]) != 1 || out.Levels[1][0].Number != 2 {
		t.Fatalf("Finish() Levels[1] = %+v, want only file 2", out.Levels[1])
	}
}

func TestBuilderSortsLevel1ByKeyRange(t *testing.T) {
	base := NewVersion()
	ve := &manifest.VersionEdit{}
	ve.AddFile(1, *fileRange(3, "m", "z", 100))
	ve.AddFile(1, *fileRange(1, "a", "c", 100))
	ve.AddFile(1, *fileRange(2, "d", "f", 100))

	b := NewBuilder(base)
	b.Apply(ve)
	out := b.Finish()

	if len(out.Levels[1]) != 3 {
		t.Fatalf("Finish() Levels[1] has %d files, want 3", len(out.Levels[1]))
	}
	if out.Levels[1][0].Number != 1 || out.Levels[1][1].Number != 2 || out.Levels[1][2].Number != 3 {
		t.Fatalf("Finish() Levels[1] order = %d,%d,%d, want 1,2,3",
			out.Levels[1][0].Number, out.Levels[1][1].Number, out.Levels[1][2].Number)
	}
}

func TestBuilderKeepsLevel0NewestFirst(t *testing.T) {
	base := NewVersion()
	ve := &manifest.VersionEdit{}
	ve.AddFile(0, *fileRange(1, "a", "z", 100))
	ve.AddFile(0, *fileRange(2, "a", "z", 100))
	ve.AddFile(0, *fileRange(3, "a", "z", 100))

	b := NewBuilder(base)
	b.Apply(ve)
	out := b.Finish()

	if out.Levels[0][0].Number != 3 || out.Levels[0][2].Number != 1 {
		t.Fatalf("Finish() Levels[0] order = %d,%d,%d, want newest-first 3,2,1",
			out.Levels[0][0].Number, out.Levels[0][1].Number, out.Levels[0][2].Number)
	}
}

func TestBuilderChainsOffPriorVersion(t *testing.T) {
	v0 := NewVersion()
	ve1 := &manifest.VersionEdit{}
	ve1.AddFile(0, *fileRange(1, "a", "b", 100))
	v1 := NewBuilder(v0).apply(ve1)

	ve2 := &manifest.VersionEdit{}
	ve2.AddFile(0, *fileRange(2, "c", "d", 100))
	v2 := NewBuilder(v1).apply(ve2)

	if len(v2.Levels[0]) != 2 {
		t.Fatalf("v2 Levels[0] has %d files, want 2 (both edits applied in sequence)", len(v2.Levels[0]))
	}
}

// apply is a small test helper chaining Apply+Finish for readability above.
func (b *Builder) apply(ve *manifest.VersionEdit) *Version {
	b.Apply(ve)
	return b.Finish()
}
