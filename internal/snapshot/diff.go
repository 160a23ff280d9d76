package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/efebarandurmaz/bbsearch/internal/classify"
)

// SnapshotDiff represents the complete diff between two snapshots.
type SnapshotDiff struct {
	OldID          string        `json:"old_id"`
	NewID          string        `json:"new_id"`
	OldTag         string        `json:"old_tag,omitempty"`
	NewTag         string        `json:"new_tag,omitempty"`
	SameSpace      bool          `json:"same_space"`
	OldMaxSteps    uint32        `json:"old_max_steps"`
	NewMaxSteps    uint32        `json:"new_max_steps"`
	HighScoreDelta int64         `json:"high_score_delta"`
	Champion       *ChampionDiff `json:"champion,omitempty"`
	Counts         []CountDiff   `json:"counts"`
	Histogram      []BinDiff     `json:"histogram"`
	Identical      bool          `json:"identical"`
}

// ChampionDiff is set when the preferred high score machine changed.
type ChampionDiff struct {
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// CountDiff compares one category.
type CountDiff struct {
	Category string `json:"category"`
	Old      uint64 `json:"old"`
	New      uint64 `json:"new"`
	Delta    int64  `json:"delta"`
}

// BinDiff compares one histogram step count.
type BinDiff struct {
	Steps uint32 `json:"steps"`
	Old   uint64 `json:"old"`
	New   uint64 `json:"new"`
	Delta int64  `json:"delta"`
}

// Diff computes the differences between two snapshots. Counts are listed for
// every category; histogram entries only where they differ.
func Diff(old, new *Snapshot) *SnapshotDiff {
	d := &SnapshotDiff{
		OldID:          old.ID,
		NewID:          new.ID,
		OldTag:         old.Tag,
		NewTag:         new.Tag,
		SameSpace:      old.States == new.States && old.GeneratorName() == new.GeneratorName(),
		OldMaxSteps:    old.MaxSteps,
		NewMaxSteps:    new.MaxSteps,
		HighScoreDelta: int64(new.HighScore) - int64(old.HighScore),
		Identical:      old.ContentHash == new.ContentHash,
	}

	for _, c := range classify.Categories {
		name := c.String()
		o, n := old.Counts[name], new.Counts[name]
		d.Counts = append(d.Counts, CountDiff{
			Category: name,
			Old:      o,
			New:      n,
			Delta:    int64(n) - int64(o),
		})
	}

	d.Histogram = diffHistograms(old.Histogram, new.Histogram)

	oldChamp, newChamp := championName(old), championName(new)
	if oldChamp != newChamp {
		d.Champion = &ChampionDiff{Old: oldChamp, New: newChamp}
	}

	return d
}

func championName(s *Snapshot) string {
	if s.Champion == nil {
		return ""
	}
	return s.Champion.Machine
}

func diffHistograms(oldHist, newHist map[uint32]uint64) []BinDiff {
	seen := make(map[uint32]uint64, len(oldHist)+len(newHist))
	for steps := range oldHist {
		seen[steps] = 0
	}
	for steps := range newHist {
		seen[steps] = 0
	}

	var diffs []BinDiff
	for _, steps := range sortedSteps(seen) {
		o, n := oldHist[steps], newHist[steps]
		if o == n {
			continue
		}
		diffs = append(diffs, BinDiff{
			Steps: steps,
			Old:   o,
			New:   n,
			Delta: int64(n) - int64(o),
		})
	}
	return diffs
}

func sortedSteps(hist map[uint32]uint64) []uint32 {
	steps := make([]uint32, 0, len(hist))
	for s := range hist {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}

// FormatDiff returns a human-readable string representation of the diff.
func FormatDiff(d *SnapshotDiff) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Diff: %s → %s\n", d.OldID, d.NewID))
	if d.OldTag != "" || d.NewTag != "" {
		sb.WriteString(fmt.Sprintf("Tags: %s → %s\n", d.OldTag, d.NewTag))
	}
	if !d.SameSpace {
		sb.WriteString("Warning: the snapshots cover different machine spaces (state count or generator)\n")
	}
	if d.Identical {
		sb.WriteString("Results are identical.\n")
		return sb.String()
	}
	if d.OldMaxSteps != d.NewMaxSteps {
		sb.WriteString(fmt.Sprintf("Max steps: %d → %d\n", d.OldMaxSteps, d.NewMaxSteps))
	}
	sb.WriteString(fmt.Sprintf("High score: %+d\n", d.HighScoreDelta))
	if d.Champion != nil {
		sb.WriteString(fmt.Sprintf("Champion: %s → %s\n", orNone(d.Champion.Old), orNone(d.Champion.New)))
	}

	sb.WriteString("\nCategories:\n")
	for _, c := range d.Counts {
		icon := " "
		switch {
		case c.Delta > 0:
			icon = "+"
		case c.Delta < 0:
			icon = "-"
		}
		sb.WriteString(fmt.Sprintf("  %s %-20s %12d → %-12d (%+d)\n", icon, c.Category, c.Old, c.New, c.Delta))
	}

	if len(d.Histogram) > 0 {
		sb.WriteString("\nHistogram:\n")
		for _, b := range d.Histogram {
			sb.WriteString(fmt.Sprintf("  steps %-6d %12d → %-12d (%+d)\n", b.Steps, b.Old, b.New, b.Delta))
		}
	}

	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
