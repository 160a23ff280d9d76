package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/search"
	"github.com/efebarandurmaz/bbsearch/internal/tui"
)

func searchResult(t *testing.T, states int) (*search.Search, *aggregate.Result) {
	t.Helper()
	s, err := search.New(search.Options{States: states, MaxSteps: 200, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s, r
}

func TestGCD(t *testing.T) {
	tests := []struct {
		name string
		nums []uint64
		want uint64
	}{
		{"none", nil, 0},
		{"all zero", []uint64{0, 0}, 0},
		{"single", []uint64{12}, 12},
		{"zeros ignored", []uint64{0, 6, 0, 12, 24}, 6},
		{"coprime", []uint64{4, 9}, 1},
		{"two-state counts", []uint64{2, 3042, 2000, 4000, 2048, 288, 528, 92}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GCD(tt.nums...); got != tt.want {
				t.Errorf("GCD(%v) = %d, want %d", tt.nums, got, tt.want)
			}
		})
	}
}

func TestPrint_TwoStates(t *testing.T) {
	s, r := searchResult(t, 2)
	opts := DefaultOptions(200)
	opts.Space = s.Space()

	var buf bytes.Buffer
	if err := Print(&buf, r, opts); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"▸ Results:",
		"- The high score (number of 1s after halting) is: 4",
		"  - 2 machines reached that high score",
		"reached the high score in 6 steps",
		"Champion: machine 8046 1RB1LB_1LA1LH",
		"- 3042 (30.42%) machines halted but did not get a high score",
		"  - 2000 (20.00%) machines halted after 1 step",
		"- 6956 (69.56%) did not terminate:",
		"  - 4000 (40.00%) immediately ran away",
		"  - 2048 (20.48%) did not contain a transition to the halt state",
		"  - 288 (2.88%) statically could not reach the halt state",
		"  - 528 (5.28%) were caught in a run-away loop",
		"  - 92 (0.92%) were aborted after the maximum number of steps (200)",
		"greatest common divisor of all these numbers is 2.",
		"2-tuples of machines",
		"▸ Histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("report written to a buffer contains escape codes")
	}
}

func TestPrint_OneState(t *testing.T) {
	_, r := searchResult(t, 1)

	var buf bytes.Buffer
	if err := Print(&buf, r, DefaultOptions(200)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"is: 1",
		"6 machines reached that high score",
		"greatest common divisor of all these numbers is 6.",
		"histogram not shown",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Champion:") {
		t.Error("champion table printed without a space")
	}
}

func TestPrint_HideHistogram(t *testing.T) {
	_, r := searchResult(t, 2)
	opts := DefaultOptions(200)
	opts.HideHistogram = true

	var buf bytes.Buffer
	if err := Print(&buf, r, opts); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Histogram") {
		t.Error("histogram printed although hidden")
	}
}

func TestPrint_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Print(&buf, aggregate.New(), DefaultOptions(10)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "0 (0.00%)") {
		t.Errorf("empty result:\n%s", buf.String())
	}
}

func histogram(hist map[uint32]uint64, height, cutoff int) []string {
	var b strings.Builder
	writeHistogram(&b, tui.NewStyles(lipgloss.NewRenderer(&b)), hist, height, cutoff)
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

func TestHistogram(t *testing.T) {
	lines := histogram(map[uint32]uint64{2: 800, 3: 160, 4: 56, 5: 8, 6: 20}, 15, 8)
	// heading, note, blank, 15 rows, steps, count
	if len(lines) != 3+15+2 {
		t.Fatalf("got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	rows := lines[3:18]

	if !strings.HasPrefix(rows[0], "      800 ▕") {
		t.Errorf("top row = %q", rows[0])
	}
	if !strings.HasPrefix(rows[14], "        0 ▕") {
		t.Errorf("bottom row = %q", rows[14])
	}
	for i, row := range rows {
		cols := []rune(row)[11:]
		if len(cols) != 6*3 {
			t.Fatalf("row %d has %d columns, want 18", i, len(cols))
		}
		// The peak column is full on every row.
		if cols[1] != '█' || cols[2] != '█' {
			t.Errorf("row %d: peak column = %q", i, string(cols[1:3]))
		}
	}
	// Step 7 is empty: only the axis line.
	bottom := []rune(rows[14])[11:]
	if string(bottom[15:18]) != "▁▁▁" {
		t.Errorf("empty column bottom = %q", string(bottom[15:18]))
	}
	if top := []rune(rows[0])[11:]; string(top[15:18]) != "   " {
		t.Errorf("empty column top = %q", string(top[15:18]))
	}

	if got, want := lines[18], "    steps:   2  3  4  5  6  7"; got != want {
		t.Errorf("steps row = %q, want %q", got, want)
	}
	if got, want := lines[19], "    count:        56  8 20  0"; got != want {
		t.Errorf("count row = %q, want %q", got, want)
	}
}

func TestHistogram_SingleCount(t *testing.T) {
	lines := histogram(map[uint32]uint64{3: 1}, 4, 5)
	rows := lines[3:7]
	for i, row := range rows {
		cols := []rune(row)[11:]
		if cols[4] != '█' {
			t.Errorf("row %d: step 3 column = %q, want full", i, string(cols[3:6]))
		}
	}
}

func TestHistogram_Empty(t *testing.T) {
	lines := histogram(nil, 15, 30)
	if len(lines) != 1 || !strings.Contains(lines[0], "histogram not shown") {
		t.Errorf("empty histogram = %q", lines)
	}
}

func TestWriteJSON(t *testing.T) {
	s, r := searchResult(t, 2)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, NewDocument(s.Space(), 200, r, s.Timing())); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		RunID     string `json:"run_id"`
		States    int    `json:"states"`
		Generator string `json:"generator"`
		MaxSteps  uint32 `json:"max_steps"`
		GCD       uint64 `json:"gcd"`
		Champion  string `json:"champion_machine"`
		Result    struct {
			Total     uint64 `json:"total"`
			HighScore uint32 `json:"high_score"`
		} `json:"result"`
		Timing struct {
			Machines uint64 `json:"machines"`
		} `json:"timing"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if doc.RunID != s.RunID() || doc.States != 2 || doc.Generator != "canonical" || doc.MaxSteps != 200 || doc.GCD != 2 {
		t.Errorf("header = %+v", doc)
	}
	if doc.Champion != "1RB1LB_1LA1LH" || doc.Result.Total != 10000 || doc.Result.HighScore != 4 {
		t.Errorf("result = %+v", doc)
	}
	if doc.Timing.Machines != 10000 {
		t.Errorf("timing machines = %d", doc.Timing.Machines)
	}
}

func TestNewDocument_NoChampion(t *testing.T) {
	space, err := enumerate.NewSpace(1)
	if err != nil {
		t.Fatal(err)
	}
	doc := NewDocument(space, 10, aggregate.New(), nil)
	if doc.Champion != "" || doc.RunID != "" || doc.GCD != 0 {
		t.Errorf("doc = %+v", doc)
	}
}
