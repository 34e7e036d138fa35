package ckv

import (
	"github.com/crwen/ckv/internal/compression"
	"github.com/crwen/ckv/internal/logging"
)

// Options configures an Engine. It is consumed once at Open and never
// revisited afterward — hot configuration changes are a non-goal.
type Options struct {
	// CreateIfMissing creates the database directory if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists fails Open if the database directory already exists.
	ErrorIfExists bool

	// MemtableSizeThreshold is the approximate size (bytes) at which the
	// active memtable is rotated out and queued for flush.
	MemtableSizeThreshold int64

	// KVSeparateThreshold is the value size (bytes) at or above which a
	// value is written to the VLOG instead of inline in an SST.
	KVSeparateThreshold int

	// L0Trigger is the number of L0 files that triggers compaction.
	L0Trigger int

	// MaxBytesForLevelBase is the size budget (bytes) for L1; each level
	// below scales by LevelSizeMultiplier.
	MaxBytesForLevelBase uint64

	// LevelSizeMultiplier is the per-level size growth factor (level N+1
	// budget = level N budget * LevelSizeMultiplier).
	LevelSizeMultiplier float64

	// SeekCompactionThreshold overrides the allowed-seeks-per-file budget
	// computed from file size; zero means use the formula
	// (max(1, file_size/16KiB)) unmodified.
	SeekCompactionThreshold int64

	// TargetFileSize is the approximate size (bytes) of one output SST
	// produced by flush or compaction.
	TargetFileSize uint64

	// BlockSize is the approximate uncompressed size (bytes) of one SST
	// data block.
	BlockSize int

	// BloomBitsPerKey is the number of bloom filter bits budgeted per key
	// in each SST's filter block.
	BloomBitsPerKey int

	// CacheShards is fixed at 16 (internal/cache.NumShards) and is not
	// user-configurable; kept here only so Options fully documents the
	// engine's cache behavior.
	CacheShards int

	// TableCacheSize is the number of open SST readers kept warm.
	TableCacheSize int

	// BlockCacheCapacity is accepted but not read by the engine: there is
	// no block cache, and data blocks are read from the file on every
	// access.
	BlockCacheCapacity int

	// Compression selects the block compression codec.
	Compression compression.Type

	// Comparator is fixed to bytewise lexicographic ordering
	// (internal/dbformat.BytewiseCompare). The field exists only so the
	// zero value is self-documenting; pluggable comparators are a
	// non-goal.
	Comparator string

	// Logger receives structured log lines from background work. If nil,
	// a default WARN-level logger writing to stderr is used.
	Logger logging.Logger
}

// DefaultOptions returns the engine's default tuning, matching the size
// figures committed to in the spec: 1MiB L1 budget, 10x per level.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:       true,
		MemtableSizeThreshold: 4 * 1024 * 1024,
		KVSeparateThreshold:   1024,
		L0Trigger:             4,
		MaxBytesForLevelBase:  1024 * 1024,
		LevelSizeMultiplier:   10.0,
		TargetFileSize:        2 * 1024 * 1024,
		BlockSize:             4096,
		BloomBitsPerKey:       10,
		CacheShards:           16,
		TableCacheSize:        512,
		BlockCacheCapacity:    8 * 1024 * 1024,
		Compression:           compression.NoCompression,
		Comparator:            "bytewise",
		Logger:                logging.NewDefaultLogger(logging.LevelInfo),
	}
}
