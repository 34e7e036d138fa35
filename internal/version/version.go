// Package version implements Version (an immutable snapshot of the set of
// live SST files per level) and VersionSet (the mutable pointer to the
// current Version plus the file/sequence-number counters), built by
// replaying and appending manifest.VersionEdit records.
package version

import (
	"github.com/crwen/ckv/internal/dbformat"
	"github.com/crwen/ckv/internal/manifest"
)

// NumLevels is the fixed number of levels (L0..L6).
const NumLevels = 7

// Version is an immutable snapshot of the files live at each level.
// Level 0 files may overlap in key range and are ordered newest-first;
// every other level's files are sorted and key-range disjoint.
type Version struct {
	Levels [NumLevels][]*manifest.FileMetaData
}

// NewVersion returns an empty Version.
func NewVersion() *Version {
	return &Version{}
}

// OverlapsLevel0 reports whether userKey range [smallest, largest] overlaps
// any file in L0.
func (v *Version) OverlapsLevel0(smallest, largest []byte) bool {
	for _, f := range v.Levels[0] {
		if dbformat.BytewiseCompare(smallest, f.Largest) <= 0 &&
			dbformat.BytewiseCompare(largest, f.Smallest) >= 0 {
			return true
		}
	}
	return false
}

// FilesOverlapping returns the files at level whose key range intersects
// [smallest, largest]. For level 0, this is a linear scan (files may
// overlap each other); for level >= 1 it is a binary search over the
// sorted, disjoint file list.
func (v *Version) FilesOverlapping(level int, smallest, largest []byte) []*manifest.FileMetaData {
	files := v.Levels[level]
	if level == 0 {
		var out []*manifest.FileMetaData
		for _, f := range files {
			if dbformat.BytewiseCompare(smallest, f.Largest) <= 0 &&
				dbformat.BytewiseCompare(largest, f.Smallest) >= 0 {
				out = append(out, f)
			}
		}
		return out
	}

	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if dbformat.BytewiseCompare(files[mid].Largest, smallest) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	var out []*manifest.FileMetaData
	for i := lo; i < len(files); i++ {
		if dbformat.BytewiseCompare(files[i].Smallest, largest) > 0 {
			break
		}
		out = append(out, files[i])
	}
	return out
}

// FindFile returns the first file at level (>=1) whose range could contain
// internalKey's user key (Largest >= userKey), or nil. Used by the binary
// search read path.
func (v *Version) FindFile(level int, userKey []byte) *manifest.FileMetaData {
	files := v.Levels[level]
	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if dbformat.BytewiseCompare(dbformat.ExtractUserKey(files[mid].Largest), userKey) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= len(files) {
		return nil
	}
	f := files[lo]
	if dbformat.BytewiseCompare(userKey, dbformat.ExtractUserKey(f.Smallest)) < 0 {
		return nil
	}
	return f
}

// TotalBytes returns the sum of file sizes at level.
func (v *Version) TotalBytes(level int) uint64 {
	var total uint64
	for _, f := range v.Levels[level] {
		total += f.FileSize
	}
	return total
}

// NumFiles returns the number of files at level.
func (v *Version) NumFiles(level int) int {
	return len(v.Levels[level])
}

// Clone returns a shallow copy of v — the per-level slices are copied, but
// *FileMetaData entries are shared (they are treated as immutable once
// added to a Version, aside from the runtime-only BeingCompacted flag).
func (v *Version) Clone() *Version {
	nv := &Version{}
	for i := range v.Levels {
		nv.Levels[i] = append([]*manifest.FileMetaData(nil), v.Levels[i]...)
	}
	return nv
}
