package version

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/vfs"
)

// VersionSet owns the current Version, the MANIFEST writer, and the
// monotonic file-number / sequence-number counters. All mutation goes
// through LogAndApply, which appends the edit to the MANIFEST before
// installing the new Version, so recovery never observes a Version the
// MANIFEST doesn't agree with.
type VersionSet struct {
	mu      sync.Mutex
	current atomic.Pointer[Version]
	writer  *manifest.Writer

	nextFileNumber atomic.Uint64
	lastSequence   atomic.Uint64
}

// Recover replays the MANIFEST file at dir (if any) and opens it for
// further appends, returning a VersionSet positioned at the replayed
// state.
func Recover(fs vfs.FS, dir string) (*VersionSet, error) {
	edits, err := manifest.ReadAll(fs, dir)
	if err != nil {
		return nil, err
	}

	b := NewBuilder(NewVersion())
	vs := &VersionSet{}
	vs.nextFileNumber.Store(1)

	for _, ve := range edits {
		b.Apply(ve)
		if ve.HasNextFileNumber {
			vs.nextFileNumber.Store(ve.NextFileNumber)
		}
		if ve.HasLastSequence {
			vs.lastSequence.Store(ve.LastSequence)
		}
	}
	vs.current.Store(b.Finish())

	w, err := manifest.OpenWriter(fs, dir)
	if err != nil {
		return nil, err
	}
	vs.writer = w
	return vs, nil
}

// Current returns the current Version. Safe to call concurrently with
// LogAndApply; the returned pointer is never mutated in place.
func (vs *VersionSet) Current() *Version {
	return vs.current.Load()
}

// NewFileNumber allocates and returns the next file number.
func (vs *VersionSet) NewFileNumber() uint64 {
	return vs.nextFileNumber.Add(1) - 1
}

// LastSequence returns the last sequence number assigned to a write.
func (vs *VersionSet) LastSequence() uint64 {
	return vs.lastSequence.Load()
}

// SetLastSequence records the last sequence number assigned, without
// itself writing a MANIFEST record (the next LogAndApply call carries it).
func (vs *VersionSet) SetLastSequence(seq uint64) {
	for {
		cur := vs.lastSequence.Load()
		if seq <= cur {
			return
		}
		if vs.lastSequence.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// LogAndApply appends ve to the MANIFEST, then installs the Version
// produced by applying it to the current Version. Serialized by mu so
// concurrent compactions/flushes never interleave their edits.
func (vs *VersionSet) LogAndApply(ve *manifest.VersionEdit) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if !ve.HasNextFileNumber {
		ve.SetNextFileNumber(vs.nextFileNumber.Load())
	}
	if !ve.HasLastSequence {
		ve.SetLastSequence(vs.lastSequence.Load())
	}

	if err := vs.writer.Append(ve); err != nil {
		return fmt.Errorf("version: log and apply: %w", err)
	}

	b := NewBuilder(vs.current.Load())
	b.Apply(ve)
	vs.current.Store(b.Finish())
	return nil
}

// Close closes the MANIFEST writer.
func (vs *VersionSet) Close() error {
	return vs.writer.Close()
}
