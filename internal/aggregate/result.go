// Package aggregate accumulates classifications into search results.
//
// Every worker owns a private Result; results are combined with Merge once
// all workers are done. Merge is commutative and associative, so the final
// Result does not depend on how the space was partitioned.
package aggregate

import (
	"encoding/json"
	"sort"

	"github.com/efebarandurmaz/bbsearch/internal/classify"
)

// Champion is the machine that reached the high score in the fewest steps,
// lowest enumeration index first on ties.
type Champion struct {
	Index uint64 `json:"index"`
	Steps uint32 `json:"steps"`
	Score uint32 `json:"score"`
}

// beats reports whether c is preferred over o at the same score.
func (c Champion) beats(o Champion) bool {
	if c.Steps != o.Steps {
		return c.Steps < o.Steps
	}
	return c.Index < o.Index
}

// Result is a partial or complete search result. The zero value is empty
// and ready to use.
type Result struct {
	total     uint64
	counts    [classify.NumCategories]uint64
	halted    uint64
	firstStep uint64

	highScore   uint32
	winners     uint64
	champion    Champion
	hasChampion bool

	// histogram[s] counts machines halting after s steps, s >= 2.
	histogram []uint64
}

// New returns an empty result.
func New() *Result { return &Result{} }

// Record adds one classified machine.
func (r *Result) Record(index uint64, c classify.Classification) {
	r.total++
	if !c.Halted() {
		r.counts[c.Category]++
		return
	}

	r.halted++
	if c.Steps == 1 {
		r.firstStep++
	} else {
		r.bump(c.Steps, 1)
	}
	r.offer(Champion{Index: index, Steps: c.Steps, Score: c.Score}, 1)
}

func (r *Result) bump(steps uint32, n uint64) {
	if int(steps) >= len(r.histogram) {
		r.histogram = append(r.histogram, make([]uint64, int(steps)-len(r.histogram)+1)...)
	}
	r.histogram[steps] += n
}

// offer applies the high score rule: a strictly better score takes over,
// an equal one adds its winners and the preferred champion is kept.
func (r *Result) offer(c Champion, winners uint64) {
	switch {
	case !r.hasChampion || c.Score > r.highScore:
		r.highScore = c.Score
		r.winners = winners
		r.champion = c
		r.hasChampion = true
	case c.Score == r.highScore:
		r.winners += winners
		if c.beats(r.champion) {
			r.champion = c
		}
	}
}

// Merge folds o into r. o is left unchanged.
func (r *Result) Merge(o *Result) {
	r.total += o.total
	for i, n := range o.counts {
		r.counts[i] += n
	}
	r.halted += o.halted
	r.firstStep += o.firstStep
	for steps, n := range o.histogram {
		if n > 0 {
			r.bump(uint32(steps), n)
		}
	}
	if o.hasChampion {
		r.offer(o.champion, o.winners)
	}
}

// Total returns the number of recorded machines.
func (r *Result) Total() uint64 { return r.total }

// Halted returns the number of halting machines.
func (r *Result) Halted() uint64 { return r.halted }

// Count returns the number of machines in category c.
func (r *Result) Count(c classify.Category) uint64 {
	switch c {
	case classify.HighScore:
		return r.winners
	case classify.HaltedOther:
		return r.halted - r.winners
	case classify.HaltedFirstStep:
		return r.firstStep
	default:
		return r.counts[c]
	}
}

// CategoryCount pairs a category with its count.
type CategoryCount struct {
	Category classify.Category `json:"category"`
	Count    uint64            `json:"count"`
}

// Counts returns every category in report order, zero counts included.
func (r *Result) Counts() []CategoryCount {
	out := make([]CategoryCount, 0, len(classify.Categories))
	for _, c := range classify.Categories {
		out = append(out, CategoryCount{Category: c, Count: r.Count(c)})
	}
	return out
}

// HighScore returns the most 1s left by a halting machine and how many
// machines left that many.
func (r *Result) HighScore() (score uint32, winners uint64) {
	return r.highScore, r.winners
}

// Champion returns the preferred high score machine. ok is false when no
// machine halted.
func (r *Result) Champion() (c Champion, ok bool) {
	return r.champion, r.hasChampion
}

// Bin is one histogram entry.
type Bin struct {
	Steps uint32 `json:"steps"`
	Count uint64 `json:"count"`
}

// Bins returns the non-empty histogram entries by ascending step count.
func (r *Result) Bins() []Bin {
	var out []Bin
	for steps, n := range r.histogram {
		if n > 0 {
			out = append(out, Bin{Steps: uint32(steps), Count: n})
		}
	}
	return out
}

// Histogram returns step count to number of machines halting after exactly
// that many steps. First-step halts are not included.
func (r *Result) Histogram() map[uint32]uint64 {
	out := make(map[uint32]uint64)
	for _, b := range r.Bins() {
		out[b.Steps] = b.Count
	}
	return out
}

// Equal reports whether r and o hold the same result.
func (r *Result) Equal(o *Result) bool {
	if r.total != o.total || r.counts != o.counts || r.halted != o.halted || r.firstStep != o.firstStep {
		return false
	}
	if r.hasChampion != o.hasChampion || r.highScore != o.highScore || r.winners != o.winners || r.champion != o.champion {
		return false
	}
	long, short := r.histogram, o.histogram
	if len(long) < len(short) {
		long, short = short, long
	}
	for i, n := range long {
		var m uint64
		if i < len(short) {
			m = short[i]
		}
		if n != m {
			return false
		}
	}
	return true
}

type resultJSON struct {
	Total     uint64          `json:"total"`
	Halted    uint64          `json:"halted"`
	HighScore uint32          `json:"high_score"`
	Winners   uint64          `json:"winners"`
	Champion  *Champion       `json:"champion,omitempty"`
	Counts    []CategoryCount `json:"counts"`
	Histogram []Bin           `json:"histogram"`
}

// MarshalJSON implements json.Marshaler.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Total:     r.total,
		Halted:    r.halted,
		HighScore: r.highScore,
		Winners:   r.winners,
		Counts:    r.Counts(),
		Histogram: r.Bins(),
	}
	if out.Histogram == nil {
		out.Histogram = []Bin{}
	}
	if r.hasChampion {
		c := r.champion
		out.Champion = &c
	}
	return json.Marshal(out)
}

// MergeAll merges results in order into a fresh Result.
func MergeAll(parts ...*Result) *Result {
	out := New()
	for _, p := range parts {
		out.Merge(p)
	}
	return out
}

// SortedCounts returns the partitioning categories ordered by descending
// count, ties in report order.
func (r *Result) SortedCounts() []CategoryCount {
	var out []CategoryCount
	for _, c := range r.Counts() {
		if c.Category.Partitioned() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
