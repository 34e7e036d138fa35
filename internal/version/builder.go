package version

import (
	"sort"

	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/manifest"
)

// Builder applies a sequence of VersionEdits to a base Version to produce
// the next Version.
type Builder struct {
	base    *Version
	deleted [NumLevels]map[uint64]bool
	added   [NumLevels][]*manifest.FileMetaData
}

// NewBuilder creates a Builder starting from base.
func NewBuilder(base *Version) *Builder {
	b := &Builder{base: base}
	for i := range b.deleted {
		b.deleted[i] = make(map[uint64]bool)
	}
	return b
}

// Apply records the effect of one VersionEdit.
func (b *Builder) Apply(ve *manifest.VersionEdit) {
	for _, d := range ve.DeletedFiles {
		b.deleted[d.Level][d.FileNumber] = true
	}
	for _, f := range ve.NewFiles {
		meta := f.Meta
		b.added[f.Level] = append(b.added[f.Level], &meta)
	}
}

// Finish produces the resulting Version.
func (b *Builder) Finish() *Version {
	out := NewVersion()
	for level := 0; level < NumLevels; level++ {
		var files []*manifest.FileMetaData
		for _, f := range b.base.Levels[level] {
			if !b.deleted[level][f.Number] {
				files = append(files, f)
			}
		}
		files = append(files, b.added[level]...)

		if level > 0 {
			sort.Slice(files, func(i, j int) bool {
				return dbformat.BytewiseCompare(files[i].Smallest, files[j].Smallest) < 0
			})
		} else {
			// L0 stays newest-first: highest file number first, since
			// file numbers are allocated in flush order.
			sort.SliceStable(files, func(i, j int) bool {
				return files[i].Number > files[j].Number
			})
		}
		out.Levels[level] = files
	}
	return out
}
