// Package report renders a search result for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/metrics"
	"github.com/efebarandurmaz/bbsearch/internal/tui"
)

// Options controls the text report.
type Options struct {
	MaxSteps        uint32
	HistogramHeight int
	HistogramCutoff int
	HideHistogram   bool

	// Space, when set, is used to print the champion's transition table.
	Space *enumerate.Space
}

// DefaultOptions returns the report defaults for a step bound.
func DefaultOptions(maxSteps uint32) Options {
	return Options{MaxSteps: maxSteps, HistogramHeight: 15, HistogramCutoff: 30}
}

// Print writes the text report of r to w. Colors are used only when w is
// a terminal.
func Print(w io.Writer, r *aggregate.Result, opts Options) error {
	st := tui.NewStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	writeResults(&b, st, r, opts)

	gcd := GCD(gcdTerms(r)...)
	fmt.Fprintf(&b, "\nHint: the greatest common divisor of all these numbers is %d.\n", gcd)
	if gcd == 1 {
		b.WriteString("This means the enumeration does not produce duplicate or equivalent machines.\n")
	} else {
		fmt.Fprintf(&b, "This means the enumeration produces %d-tuples of machines that are equivalent to one another.\n", gcd)
		b.WriteString("A smarter enumeration could speed this up by removing duplicate machines.\n")
	}

	if !opts.HideHistogram {
		b.WriteString("\n\n")
		writeHistogram(&b, st, r.Histogram(), opts.HistogramHeight, opts.HistogramCutoff)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeResults(b *strings.Builder, st *tui.Styles, r *aggregate.Result, opts Options) {
	total := r.Total()
	pct := func(v uint64) string {
		if total == 0 {
			return "0.00%"
		}
		return fmt.Sprintf("%.2f%%", 100*float64(v)/float64(total))
	}
	line := func(indent string, c classify.Category, text string) {
		style := st.Category(c)
		n := r.Count(c)
		fmt.Fprintf(b, "%s%s (%s) %s\n", indent, style.Render(fmt.Sprint(n)), style.Render(pct(n)), text)
	}

	b.WriteString(st.Heading.Render("▸ Results:") + "\n")

	score, winners := r.HighScore()
	champion, ok := r.Champion()
	fmt.Fprintf(b, "- The high score (number of 1s after halting) is: %s\n", st.HighScore.Render(fmt.Sprint(score)))
	fmt.Fprintf(b, "  - %s machines reached that high score\n", st.HighScore.Render(fmt.Sprint(winners)))
	if ok {
		fmt.Fprintf(b, "  - The quickest of which reached the high score in %s steps\n", st.HighScore.Render(fmt.Sprint(champion.Steps)))
		if opts.Space != nil {
			fmt.Fprintf(b, "  - Champion: machine %d %s\n", champion.Index, st.HighScore.Render(opts.Space.At(champion.Index).String()))
		}
	}

	line("- ", classify.HaltedOther, "machines halted but did not get a high score")
	line("  - ", classify.HaltedFirstStep, "machines halted after 1 step (their first transition was to the halt state)")

	var nonTerminated uint64
	for _, c := range nonTerminating {
		nonTerminated += r.Count(c)
	}
	fmt.Fprintf(b, "- %s (%s) did not terminate:\n",
		st.NonTerminated.Render(fmt.Sprint(nonTerminated)), st.NonTerminated.Render(pct(nonTerminated)))
	line("  - ", classify.ImmediateRunaway, "immediately ran away in one direction and remained in the start state")
	line("  - ", classify.NoHaltTransition, "did not contain a transition to the halt state")
	line("  - ", classify.HaltUnreachable, "statically could not reach the halt state")
	line("  - ", classify.RunawayLoop, "were caught in a run-away loop")
	line("  - ", classify.StepBoundExceeded, fmt.Sprintf("were aborted after the maximum number of steps (%d)", opts.MaxSteps))
}

var nonTerminating = []classify.Category{
	classify.ImmediateRunaway,
	classify.NoHaltTransition,
	classify.HaltUnreachable,
	classify.RunawayLoop,
	classify.StepBoundExceeded,
}

// gcdTerms lists every count the report prints per category, first-step
// halts included.
func gcdTerms(r *aggregate.Result) []uint64 {
	out := make([]uint64, 0, classify.NumCategories)
	for _, c := range r.Counts() {
		out = append(out, c.Count)
	}
	return out
}

// GCD returns the greatest common divisor of nums. Zeros are ignored; the
// GCD of no non-zero numbers is 0.
func GCD(nums ...uint64) uint64 {
	var g uint64
	for _, n := range nums {
		for n > 0 {
			g, n = n, g%n
		}
	}
	return g
}

var bars = [...]rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// writeHistogram draws halting step counts on a log scale, one column per
// step count from 2 up to cutoff, exclusive.
func writeHistogram(b *strings.Builder, st *tui.Styles, hist map[uint32]uint64, height, cutoff int) {
	if len(hist) == 0 {
		b.WriteString("   (histogram not shown as no machine halted after more than 1 step)\n")
		return
	}
	height = max(height, 2)

	b.WriteString(st.Heading.Render("▸ Histogram (how many machines halted after x steps):") + "\n")
	b.WriteString("note: the y-axis is logarithmic\n\n")

	var peak uint64
	for _, n := range hist {
		peak = max(peak, n)
	}
	peakLog := math.Log10(float64(peak))

	lines := make([][]rune, height)
	for row := range lines {
		inv := height - row - 1
		var label string
		switch {
		case inv == 0:
			label = "        0 ▕"
		case inv == height-1:
			label = fmt.Sprintf("%9d ▕", peak)
		case inv%2 == 0 && inv < height-2:
			v := math.Round(math.Pow(10, peakLog*float64(inv)/float64(height)))
			label = fmt.Sprintf("%9d ▕", uint64(v))
		default:
			label = "          ▕"
		}
		lines[row] = []rune(label)
	}

	for steps := 2; steps < cutoff; steps++ {
		for row := range height - 1 {
			lines[row] = append(lines[row], ' ')
		}
		lines[height-1] = append(lines[height-1], '▁')

		// Bar height in eighths of a row. The bottom eighth is the axis
		// line, so every column has at least one.
		eighths := int(math.Round((8*float64(height)-1)*barRatio(hist[uint32(steps)], peakLog))) + 1
		for row := range height {
			inv := height - row - 1
			symbol := bars[min(max(eighths-inv*8, 0), 8)]
			lines[row] = append(lines[row], symbol, symbol)
		}
	}

	for _, l := range lines {
		b.WriteString(string(l) + "\n")
	}

	b.WriteString("    steps: ")
	for steps := 2; steps < cutoff; steps++ {
		fmt.Fprintf(b, "%3d", steps)
	}
	b.WriteString("\n    count: ")
	for steps := 2; steps < cutoff; steps++ {
		if n := hist[uint32(steps)]; n < 100 {
			fmt.Fprintf(b, " %2d", n)
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteString("\n")
}

func barRatio(count uint64, peakLog float64) float64 {
	switch {
	case count == 0:
		return 0
	case peakLog == 0:
		return 1
	default:
		return math.Log10(float64(count)) / peakLog
	}
}

// Document is the JSON form of a finished search.
type Document struct {
	RunID     string              `json:"run_id"`
	States    int                 `json:"states"`
	Generator enumerate.Generator `json:"generator"`
	MaxSteps  uint32              `json:"max_steps"`
	GCD       uint64              `json:"gcd"`
	Champion  string              `json:"champion_machine,omitempty"`
	Result    *aggregate.Result   `json:"result"`
	Timing    *metrics.RunMetrics `json:"timing,omitempty"`
}

// NewDocument assembles the JSON document of a search over space.
func NewDocument(space *enumerate.Space, maxSteps uint32, r *aggregate.Result, timing *metrics.RunMetrics) Document {
	doc := Document{
		States:    space.States(),
		Generator: space.Generator(),
		MaxSteps:  maxSteps,
		GCD:       GCD(gcdTerms(r)...),
		Result:    r,
		Timing:    timing,
	}
	if timing != nil {
		doc.RunID = timing.RunID
	}
	if c, ok := r.Champion(); ok {
		doc.Champion = space.At(c.Index).String()
	}
	return doc
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
