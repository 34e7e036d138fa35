// Package errs defines the sentinel error kinds shared across the engine.
//
// Every package wraps one of these with fmt.Errorf("...: %w", ErrXxx) at the
// point of detection, so callers anywhere in the stack can test with
// errors.Is regardless of which package raised it.
package errs

import "errors"

var (
	// ErrIO covers any failure from the underlying filesystem: short reads,
	// failed writes, failed syncs, failed renames.
	ErrIO = errors.New("io error")

	// ErrChecksumMismatch is returned when a stored checksum does not match
	// the checksum recomputed over the bytes read back (WAL/MANIFEST/VLOG
	// frames, SST blocks).
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrDecode is returned when a byte sequence cannot be parsed into the
	// structure it is supposed to encode (truncated length, bad magic,
	// malformed varint).
	ErrDecode = errors.New("decode error")

	// ErrCacheFull is returned by Cache.Insert when the shard has nothing
	// unpinned left to evict to make room for the new entry.
	ErrCacheFull = errors.New("cache full")

	// ErrDuplicateInsert is returned by Cache.Insert when the key is already
	// present in the shard.
	ErrDuplicateInsert = errors.New("duplicate insert")

	// ErrUnpinUnpinned is returned by Cache.Unpin when a handle's pin count
	// is already zero.
	ErrUnpinUnpinned = errors.New("unpin of unpinned entry")

	// ErrClosed is returned by engine operations invoked after Close.
	ErrClosed = errors.New("engine closed")

	// ErrNotFound is returned by Get when the key does not exist (or the
	// most recent visible entry for it is a tombstone).
	ErrNotFound = errors.New("key not found")
)
