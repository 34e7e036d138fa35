// Package compaction selects and describes compaction jobs: which files
// at which levels should be merged into which output level.
package compaction

import (
	"github.com/crwen/ckv/internal/manifest"
	"github.com/crwen/ckv/internal/version"
)

// Compaction describes one compaction job: the input files (possibly from
// two adjacent levels) and the level the merged output lands on.
type Compaction struct {
	Level       int // the level compaction was triggered from
	OutputLevel int
	Inputs      []*manifest.FileMetaData // files from Level
	Grandparent []*manifest.FileMetaData // overlapping files from OutputLevel

	// IsBaseLevel is true when OutputLevel is the last level that can
	// contain data for the compacted key range — i.e. no level below
	// OutputLevel holds any file overlapping it. Tombstones are dropped
	// (not carried into the output) only when IsBaseLevel is true: below
	// this level there is no older version of the key left to shadow.
	IsBaseLevel bool
}

// Picker selects compaction work against a Version.
type Picker struct {
	NumLevels            int
	L0Trigger            int
	MaxBytesForLevelBase uint64
	LevelSizeMultiplier  float64
}

// NewPicker creates a Picker with the given tunables (from Options).
func NewPicker(numLevels, l0Trigger int, maxBytesForLevelBase uint64, levelSizeMultiplier float64) *Picker {
	return &Picker{
		NumLevels:            numLevels,
		L0Trigger:            l0Trigger,
		MaxBytesForLevelBase: maxBytesForLevelBase,
		LevelSizeMultiplier:  levelSizeMultiplier,
	}
}

// targetSizeForLevel returns the size budget for a level >= 1:
// MaxBytesForLevelBase * LevelSizeMultiplier^(level-1).
func (p *Picker) targetSizeForLevel(level int) uint64 {
	size := float64(p.MaxBytesForLevelBase)
	for i := 1; i < level; i++ {
		size *= p.LevelSizeMultiplier
	}
	return uint64(size)
}

func (p *Picker) computeScore(v *version.Version, level int) float64 {
	if level == 0 {
		return float64(v.NumFiles(0)) / float64(p.L0Trigger)
	}
	target := p.targetSizeForLevel(level)
	if target == 0 {
		return 0
	}
	return float64(v.TotalBytes(level)) / float64(target)
}

// NeedsCompaction reports whether any level is over its trigger.
func (p *Picker) NeedsCompaction(v *version.Version) bool {
	if v.NumFiles(0) >= p.L0Trigger {
		return true
	}
	for level := 1; level < p.NumLevels-1; level++ {
		if p.computeScore(v, level) >= 1.0 {
			return true
		}
	}
	return false
}

// PickSizeCompaction picks a size- or count-triggered compaction: L0
// overflow takes priority, then the level with the highest score.
func (p *Picker) PickSizeCompaction(v *version.Version) *Compaction {
	if v.NumFiles(0) >= p.L0Trigger {
		return p.pickLevelCompaction(v, 0)
	}

	bestLevel, bestScore := -1, 0.0
	for level := 1; level < p.NumLevels-1; level++ {
		if score := p.computeScore(v, level); score > bestScore {
			bestScore, bestLevel = score, level
		}
	}
	if bestLevel >= 0 && bestScore >= 1.0 {
		return p.pickLevelCompaction(v, bestLevel)
	}
	return nil
}

// PickSeekCompaction builds a Compaction for a single file whose
// allowed-seeks budget has been exhausted by Get's seek-tracking.
func (p *Picker) PickSeekCompaction(v *version.Version, level int, file *manifest.FileMetaData) *Compaction {
	return p.buildCompaction(v, level, []*manifest.FileMetaData{file})
}

func (p *Picker) pickLevelCompaction(v *version.Version, level int) *Compaction {
	files := v.Levels[level]
	if len(files) == 0 {
		return nil
	}

	var inputs []*manifest.FileMetaData
	if level == 0 {
		// All of L0 participates: L0 files may overlap each other, so
		// compacting a strict subset could still leave overlapping ranges
		// at L0.
		inputs = append(inputs, files...)
	} else {
		// Pick the file needing compaction most (oldest/least-recently
		// compacted by convention: the first one not already marked).
		for _, f := range files {
			if !f.BeingCompacted {
				inputs = append(inputs, f)
				break
			}
		}
	}
	if len(inputs) == 0 {
		return nil
	}
	return p.buildCompaction(v, level, inputs)
}

func (p *Picker) buildCompaction(v *version.Version, level int, inputs []*manifest.FileMetaData) *Compaction {
	smallest, largest := keyRange(inputs)
	outputLevel := level + 1
	if level == 0 {
		outputLevel = 1
	}

	grandparent := v.FilesOverlapping(outputLevel, smallest, largest)

	isBaseLevel := true
	for l := outputLevel + 1; l < p.NumLevels; l++ {
		if len(v.FilesOverlapping(l, smallest, largest)) > 0 {
			isBaseLevel = false
			break
		}
	}

	return &Compaction{
		Level:       level,
		OutputLevel: outputLevel,
		Inputs:      inputs,
		Grandparent: grandparent,
		IsBaseLevel: isBaseLevel,
	}
}

func keyRange(files []*manifest.FileMetaData) (smallest, largest []byte) {
	for i, f := range files {
		if i == 0 || lessBytes(f.Smallest, smallest) {
			smallest = f.Smallest
		}
		if i == 0 || lessBytes(largest, f.Largest) {
			largest = f.Largest
		}
	}
	return smallest, largest
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
