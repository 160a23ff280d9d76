package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/observability"
)

func run(t *testing.T, states, workers int) *aggregate.Result {
	t.Helper()
	r, err := Run(context.Background(), Options{States: states, MaxSteps: 200, Workers: workers})
	if err != nil {
		t.Fatalf("Run(N=%d, workers=%d): %v", states, workers, err)
	}
	return r
}

func TestRun_OneState(t *testing.T) {
	r := run(t, 1, 2)

	if r.Total() != 36 {
		t.Errorf("total = %d, want 36", r.Total())
	}
	score, winners := r.HighScore()
	if score != 1 || winners != 6 {
		t.Errorf("high score = %d by %d, want 1 by 6", score, winners)
	}
	if c, _ := r.Champion(); c.Steps != 1 {
		t.Errorf("champion steps = %d, want 1", c.Steps)
	}
	want := map[classify.Category]uint64{
		classify.HighScore:        6,
		classify.HaltedOther:      6,
		classify.HaltedFirstStep:  12,
		classify.ImmediateRunaway: 24,
	}
	for _, cc := range r.Counts() {
		if cc.Count != want[cc.Category] {
			t.Errorf("%s = %d, want %d", cc.Category, cc.Count, want[cc.Category])
		}
	}
	if len(r.Histogram()) != 0 {
		t.Errorf("histogram = %v, want empty", r.Histogram())
	}
}

func TestRun_TwoStates(t *testing.T) {
	r := run(t, 2, 4)

	if r.Total() != 10000 {
		t.Errorf("total = %d, want 10000", r.Total())
	}
	score, winners := r.HighScore()
	if score != 4 || winners != 2 {
		t.Errorf("high score = %d by %d, want 4 by 2", score, winners)
	}
	c, ok := r.Champion()
	if !ok || c.Steps != 6 || c.Index != 8046 {
		t.Errorf("champion = %+v, want index 8046 in 6 steps", c)
	}
	space, _ := enumerate.NewSpace(2)
	if got := space.At(c.Index).String(); got != "1RB1LB_1LA1LH" {
		t.Errorf("champion machine = %s", got)
	}

	want := map[classify.Category]uint64{
		classify.HighScore:         2,
		classify.HaltedOther:       3042,
		classify.HaltedFirstStep:   2000,
		classify.ImmediateRunaway:  4000,
		classify.NoHaltTransition:  2048,
		classify.HaltUnreachable:   288,
		classify.RunawayLoop:       528,
		classify.StepBoundExceeded: 92,
	}
	var partition uint64
	for _, cc := range r.Counts() {
		if cc.Count != want[cc.Category] {
			t.Errorf("%s = %d, want %d", cc.Category, cc.Count, want[cc.Category])
		}
		if cc.Category.Partitioned() {
			partition += cc.Count
		}
	}
	if partition != r.Total() {
		t.Errorf("categories sum to %d, total %d", partition, r.Total())
	}

	wantHist := map[uint32]uint64{2: 800, 3: 160, 4: 56, 5: 8, 6: 20}
	got := r.Histogram()
	if len(got) != len(wantHist) {
		t.Fatalf("histogram = %v, want %v", got, wantHist)
	}
	for steps, n := range wantHist {
		if got[steps] != n {
			t.Errorf("histogram[%d] = %d, want %d", steps, got[steps], n)
		}
	}
}

func TestRun_WorkerCountInvariant(t *testing.T) {
	for _, states := range []int{1, 2} {
		base := run(t, states, 1)
		for _, workers := range []int{2, 3, 8, 64} {
			if got := run(t, states, workers); !got.Equal(base) {
				t.Errorf("N=%d: %d workers differ from 1 worker", states, workers)
			}
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"zero states", Options{States: 0, MaxSteps: 10, Workers: 1}, enumerate.ErrTooManyStates},
		{"seven states", Options{States: 7, MaxSteps: 10, Workers: 1}, enumerate.ErrTooManyStates},
		{"zero bound", Options{States: 2, MaxSteps: 0, Workers: 1}, ErrInvalidOptions},
		{"zero workers", Options{States: 2, MaxSteps: 10, Workers: 0}, ErrInvalidOptions},
		{"negative workers", Options{States: 2, MaxSteps: 10, Workers: -3}, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(Options{States: 3, MaxSteps: 200, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if r != nil {
		t.Error("cancelled run returned a result")
	}
	if done := s.Progress().Done(); done >= s.Progress().Total() {
		t.Errorf("cancelled run processed %d of %d", done, s.Progress().Total())
	}
}

func TestProgress(t *testing.T) {
	s, err := New(Options{States: 2, MaxSteps: 200, Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	p := s.Progress()
	if p.Total() != 10000 || p.Done() != 0 || p.Fraction() != 0 {
		t.Fatalf("fresh progress = %d/%d", p.Done(), p.Total())
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Done() != 10000 || p.Fraction() != 1 {
		t.Errorf("final progress = %d/%d", p.Done(), p.Total())
	}
}

func TestProgress_AdvancesInBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(Options{States: 2, MaxSteps: 200, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The single worker publishes its first batch and then sees the
	// cancellation.
	if done := s.Progress().Done(); done != batchSize {
		t.Errorf("done = %d, want one batch of %d", done, batchSize)
	}
}

func runGenerated(t *testing.T, states int, gen enumerate.Generator) *aggregate.Result {
	t.Helper()
	r, err := Run(context.Background(), Options{States: states, MaxSteps: 200, Workers: 4, Generator: gen})
	if err != nil {
		t.Fatalf("Run(N=%d, %s): %v", states, gen, err)
	}
	return r
}

func TestRun_NoSymmetriesHalvesEveryCount(t *testing.T) {
	for _, states := range []int{1, 2} {
		t.Run(fmt.Sprintf("N=%d", states), func(t *testing.T) {
			all := runGenerated(t, states, enumerate.All)
			dedup := runGenerated(t, states, enumerate.NoSymmetries)

			if all.Total() != 2*dedup.Total() {
				t.Errorf("total %d, want half of %d", dedup.Total(), all.Total())
			}
			for _, c := range classify.Categories {
				if all.Count(c) != 2*dedup.Count(c) {
					t.Errorf("%s = %d, want half of %d", c, dedup.Count(c), all.Count(c))
				}
			}
			allScore, _ := all.HighScore()
			dedupScore, _ := dedup.HighScore()
			if allScore != dedupScore {
				t.Errorf("high score %d, want %d", dedupScore, allScore)
			}
			allHist, dedupHist := all.Histogram(), dedup.Histogram()
			if len(allHist) != len(dedupHist) {
				t.Fatalf("histogram %v, want half of %v", dedupHist, allHist)
			}
			for steps, n := range allHist {
				if n != 2*dedupHist[steps] {
					t.Errorf("histogram[%d] = %d, want half of %d", steps, dedupHist[steps], n)
				}
			}
		})
	}
}

func TestRun_GeneratorsAgreeOnHighScore(t *testing.T) {
	canonical := runGenerated(t, 2, enumerate.Canonical)
	want, _ := canonical.HighScore()
	wantChamp, _ := canonical.Champion()
	for _, gen := range []enumerate.Generator{enumerate.All, enumerate.NoSymmetries, enumerate.Optimized} {
		r := runGenerated(t, 2, gen)
		score, _ := r.HighScore()
		champ, _ := r.Champion()
		if score != want || champ.Steps != wantChamp.Steps {
			t.Errorf("%s: high score %d in %d steps, want %d in %d", gen, score, champ.Steps, want, wantChamp.Steps)
		}
		if size, _ := enumerate.GeneratedSize(2, gen); r.Total() != size {
			t.Errorf("%s: total %d, want %d", gen, r.Total(), size)
		}
	}
}

func TestRun_Timing(t *testing.T) {
	s, err := New(Options{States: 2, MaxSteps: 200, Workers: 4, RunID: "timing"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	tm := s.Timing()
	if tm.RunID != "timing" || tm.Machines != 10000 || len(tm.Partitions) != 4 {
		t.Errorf("timing = %+v", tm)
	}
	var sum uint64
	for _, p := range tm.Partitions {
		sum += p.Machines
	}
	if sum != 10000 {
		t.Errorf("partitions cover %d machines", sum)
	}
}

func TestRun_GeneratesRunID(t *testing.T) {
	a, _ := New(Options{States: 1, MaxSteps: 10, Workers: 1})
	b, _ := New(Options{States: 1, MaxSteps: 10, Workers: 1})
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Errorf("run ids %q and %q", a.RunID(), b.RunID())
	}
}

func TestRun_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	if _, err := Run(context.Background(), Options{States: 1, MaxSteps: 200, Workers: 3}); err != nil {
		t.Fatal(err)
	}

	var runs, partitions int
	for _, span := range rec.Ended() {
		switch {
		case span.Name() == "search.run":
			runs++
		case strings.HasPrefix(span.Name(), "search.partition."):
			partitions++
		}
	}
	if runs != 1 || partitions != 3 {
		t.Errorf("recorded %d run and %d partition spans, want 1 and 3", runs, partitions)
	}
}

func TestRun_JournalAndMetrics(t *testing.T) {
	var journal bytes.Buffer
	m := observability.NewSearchMetrics()
	_, err := Run(context.Background(), Options{
		States:   2,
		MaxSteps: 200,
		Workers:  2,
		RunID:    "wired",
		Metrics:  m,
		Journal:  observability.NewJournalWriter(&journal, "wired"),
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(journal.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("journal has %d lines, want 4:\n%s", len(lines), journal.String())
	}
	if !strings.Contains(lines[0], `"run.start"`) || !strings.Contains(lines[3], `"run.complete"`) {
		t.Errorf("unexpected journal:\n%s", journal.String())
	}
	if !strings.Contains(lines[3], `"high_score":4`) {
		t.Errorf("completion event lacks result: %s", lines[3])
	}

	if m.PartitionsTotal.Value() != 2 || m.RunsTotal.Value() != 1 || m.HighScore.Value() != 4 {
		t.Errorf("metrics: partitions %v runs %v high score %v",
			m.PartitionsTotal.Value(), m.RunsTotal.Value(), m.HighScore.Value())
	}
	if m.ActiveWorkers.Value() != 0 {
		t.Errorf("active workers = %v after run", m.ActiveWorkers.Value())
	}

	var buf bytes.Buffer
	m.Registry.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "bbsearch_machines_processed_total 10000") {
		t.Errorf("progress metric missing:\n%s", buf.String())
	}
}
