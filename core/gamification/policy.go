package gamification

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
)

const BaseLevel = 1

var errInvalidThresholds = errors.New("invalid level thresholds")

// ComputeLevel walks thresholds in ascending min_points order and returns the level of the
// last threshold reached, stopping at the first one that is not. Unsorted input is sorted first.
func ComputeLevel(totalPoints int, thresholds []LevelThreshold) int {
	sorted := sortedThresholds(thresholds)
	level := BaseLevel
	for _, th := range sorted {
		if totalPoints < th.MinPoints {
			break
		}
		level = th.Level
	}
	return level
}

func sortedThresholds(thresholds []LevelThreshold) []LevelThreshold {
	if sort.SliceIsSorted(thresholds, func(i, j int) bool { return thresholds[i].MinPoints < thresholds[j].MinPoints }) {
		return thresholds
	}
	sorted := make([]LevelThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })
	return sorted
}

// ValidateThresholds checks that levels start at 2, have no gaps and strictly increase together with min_points.
func ValidateThresholds(thresholds []LevelThreshold) error {
	sorted := make([]LevelThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	var flds []core.FieldError
	prev := LevelThreshold{Level: BaseLevel, MinPoints: -1}
	for _, th := range sorted {
		switch {
		case th.MinPoints < 0:
			flds = append(flds, core.FieldError{
				Field: "min_points",
				Error: fmt.Sprintf("level %d: min_points cannot be negative", th.Level),
			})
		case th.Level != prev.Level+1:
			flds = append(flds, core.FieldError{
				Field: "level",
				Error: fmt.Sprintf("level %d: levels must be contiguous starting at %d", th.Level, BaseLevel+1),
			})
		case th.MinPoints <= prev.MinPoints:
			flds = append(flds, core.FieldError{
				Field: "min_points",
				Error: fmt.Sprintf("level %d: min_points must be greater than level %d's", th.Level, prev.Level),
			})
		}
		prev = th
	}
	if len(flds) > 0 {
		return core.NewValidationError(errInvalidThresholds, flds...)
	}
	return nil
}

// mergeThreshold replaces or adds th in thresholds.
func mergeThreshold(thresholds []LevelThreshold, th LevelThreshold) []LevelThreshold {
	merged := make([]LevelThreshold, 0, len(thresholds)+1)
	for _, t := range thresholds {
		if t.Level != th.Level {
			merged = append(merged, t)
		}
	}
	return append(merged, th)
}

func removeThreshold(thresholds []LevelThreshold, level int) ([]LevelThreshold, bool) {
	kept := make([]LevelThreshold, 0, len(thresholds))
	var found bool
	for _, t := range thresholds {
		if t.Level == level {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	return kept, found
}
