package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
)

const championIndex = 8046 // 1RB1LB_1LA1LH

func halted(steps, score uint32) classify.Classification {
	return classify.Classification{Category: classify.HaltedOther, Steps: steps, Score: score}
}

func aborted() classify.Classification {
	return classify.Classification{Category: classify.StepBoundExceeded}
}

func twoStateSpace(t *testing.T) *enumerate.Space {
	t.Helper()
	space, err := enumerate.NewSpace(2)
	if err != nil {
		t.Fatal(err)
	}
	return space
}

// makeResults returns a result where the champion halts and one where it
// was cut off by a lower bound.
func makeResults() (withChampion, withoutChampion *aggregate.Result) {
	withChampion = aggregate.New()
	withChampion.Record(championIndex, halted(6, 4))
	withChampion.Record(1, aborted())
	withChampion.Record(2, halted(2, 1))

	withoutChampion = aggregate.New()
	withoutChampion.Record(championIndex, aborted())
	withoutChampion.Record(1, aborted())
	withoutChampion.Record(2, halted(2, 1))
	return withChampion, withoutChampion
}

func TestContentHash(t *testing.T) {
	content := []byte("hello world")
	h1 := ContentHash(content)
	h2 := ContentHash(content)
	if h1 != h2 {
		t.Fatalf("ContentHash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("unexpected hash length: %d", len(h1))
	}
	if h1 == ContentHash([]byte("different")) {
		t.Fatal("different content produced same hash")
	}
}

func TestNewSnapshot(t *testing.T) {
	space := twoStateSpace(t)
	r, _ := makeResults()
	snap := NewSnapshot(space, 200, "run-1", r)

	if len(snap.ID) != 16 {
		t.Errorf("ID = %q, want 16 hex chars", snap.ID)
	}
	if snap.States != 2 || snap.MaxSteps != 200 || snap.RunID != "run-1" {
		t.Errorf("header = %d/%d/%s", snap.States, snap.MaxSteps, snap.RunID)
	}
	if snap.Total != 3 || snap.Halted != 2 || snap.HighScore != 4 {
		t.Errorf("totals = %d/%d/%d, want 3/2/4", snap.Total, snap.Halted, snap.HighScore)
	}
	if snap.Champion == nil || snap.Champion.Machine != "1RB1LB_1LA1LH" || snap.Champion.Steps != 6 {
		t.Errorf("champion = %+v", snap.Champion)
	}
	if len(snap.Counts) != classify.NumCategories {
		t.Errorf("got %d counts, want one per category", len(snap.Counts))
	}
	if snap.Counts["step_bound_exceeded"] != 1 || snap.Counts["high_score"] != 1 {
		t.Errorf("counts = %v", snap.Counts)
	}
	if snap.Histogram[6] != 1 || snap.Histogram[2] != 1 || len(snap.Histogram) != 2 {
		t.Errorf("histogram = %v", snap.Histogram)
	}

	again := NewSnapshot(space, 200, "run-2", r)
	if again.ContentHash != snap.ContentHash {
		t.Error("equal results hashed differently")
	}
	other := NewSnapshot(space, 100, "run-1", r)
	if other.ContentHash == snap.ContentHash {
		t.Error("different bounds hashed equally")
	}
}

func TestNewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
	if _, err := os.Stat(filepath.Join(dir, "snapshots")); err != nil {
		t.Fatalf("snapshots dir missing: %v", err)
	}
}

func TestNewStore_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(dir); err == nil {
		t.Fatal("expected error for corrupt index")
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := makeResults()
	snap := NewSnapshot(twoStateSpace(t), 200, "run-1", r)
	snap.Tag = "baseline"

	if err := store.Save(snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(snap.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ContentHash != snap.ContentHash || loaded.Tag != "baseline" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Histogram[6] != 1 {
		t.Errorf("histogram did not survive a round trip: %v", loaded.Histogram)
	}

	// A reopened store sees the same index.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if list := reopened.List(); len(list) != 1 || list[0].ID != snap.ID {
		t.Errorf("List after reopen = %+v", list)
	}
}

func TestStoreResolve(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r, _ := makeResults()
	snap := NewSnapshot(twoStateSpace(t), 200, "", r)
	snap.Tag = "v1"
	if err := store.Save(snap); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"by id", snap.ID, false},
		{"by tag", "v1", false},
		{"unknown", "nope", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Resolve(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("Resolve(%q) error = %v, want ErrNotFound", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != snap.ID {
				t.Errorf("Resolve(%q) = %s, want %s", tt.ref, got.ID, snap.ID)
			}
		})
	}
}

func TestStoreTagAndDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	space := twoStateSpace(t)
	a, b := makeResults()
	first := NewSnapshot(space, 200, "", a)
	second := NewSnapshot(space, 5, "", b)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	for _, s := range []*Snapshot{first, second} {
		if err := store.Save(s); err != nil {
			t.Fatal(err)
		}
	}

	if list := store.List(); len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("List not newest first: %+v", list)
	}

	if err := store.Tag(first.ID, "baseline"); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if err := store.Tag(second.ID, "baseline"); err == nil {
		t.Error("expected error for a duplicate tag")
	}
	dup := NewSnapshot(space, 200, "", a)
	dup.Tag = "baseline"
	if err := store.Save(dup); err == nil {
		t.Error("expected error saving under a tag in use")
	}

	loaded, err := store.Resolve("baseline")
	if err != nil || loaded.ID != first.ID {
		t.Fatalf("Resolve(baseline) = %v, %v", loaded, err)
	}

	if err := store.Delete(first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: %v", err)
	}
	if list := store.List(); len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("List after delete = %+v", list)
	}
}

func TestDiff(t *testing.T) {
	space := twoStateSpace(t)
	a, b := makeResults()
	old := NewSnapshot(space, 200, "", a)
	old.Tag = "bound-200"
	cur := NewSnapshot(space, 5, "", b)

	d := Diff(old, cur)
	if d.Identical || !d.SameSpace {
		t.Fatalf("Identical=%v SameSpace=%v", d.Identical, d.SameSpace)
	}
	if d.HighScoreDelta != -3 {
		t.Errorf("HighScoreDelta = %d, want -3", d.HighScoreDelta)
	}
	if d.Champion == nil || d.Champion.Old != "1RB1LB_1LA1LH" || d.Champion.New == d.Champion.Old {
		t.Errorf("Champion = %+v", d.Champion)
	}

	deltas := make(map[string]int64)
	for _, c := range d.Counts {
		deltas[c.Category] = c.Delta
	}
	want := map[string]int64{
		"high_score":          0,
		"halted_other":        -1,
		"step_bound_exceeded": 1,
	}
	for cat, delta := range want {
		if deltas[cat] != delta {
			t.Errorf("delta[%s] = %d, want %d", cat, deltas[cat], delta)
		}
	}
	if len(d.Counts) != classify.NumCategories {
		t.Errorf("got %d count diffs", len(d.Counts))
	}

	if len(d.Histogram) != 1 || d.Histogram[0] != (BinDiff{Steps: 6, Old: 1, New: 0, Delta: -1}) {
		t.Errorf("Histogram = %+v", d.Histogram)
	}

	text := FormatDiff(d)
	for _, s := range []string{
		"Tags: bound-200 → ",
		"Max steps: 200 → 5",
		"High score: -3",
		"Champion: 1RB1LB_1LA1LH → ",
		"- halted_other",
		"+ step_bound_exceeded",
		"steps 6",
	} {
		if !strings.Contains(text, s) {
			t.Errorf("FormatDiff missing %q:\n%s", s, text)
		}
	}
}

func TestDiff_Identical(t *testing.T) {
	space := twoStateSpace(t)
	a, _ := makeResults()
	d := Diff(NewSnapshot(space, 200, "x", a), NewSnapshot(space, 200, "y", a))
	if !d.Identical || d.Champion != nil || len(d.Histogram) != 0 {
		t.Fatalf("diff = %+v", d)
	}
	if !strings.Contains(FormatDiff(d), "Results are identical.") {
		t.Error("identical results not reported")
	}
}

func TestDiff_DifferentSpaces(t *testing.T) {
	one, err := enumerate.NewSpace(1)
	if err != nil {
		t.Fatal(err)
	}
	r := aggregate.New()
	r.Record(0, halted(1, 1))
	a, _ := makeResults()

	d := Diff(NewSnapshot(one, 200, "", r), NewSnapshot(twoStateSpace(t), 200, "", a))
	if d.SameSpace {
		t.Error("SameSpace for 1 and 2 states")
	}
	if !strings.Contains(FormatDiff(d), "different machine spaces") {
		t.Error("missing space warning")
	}
}

func TestDiff_DifferentGenerators(t *testing.T) {
	mirrored, err := enumerate.NewGeneratedSpace(2, enumerate.NoSymmetries)
	if err != nil {
		t.Fatal(err)
	}
	r := aggregate.New()
	r.Record(0, halted(1, 1))

	canonical := NewSnapshot(twoStateSpace(t), 200, "", r)
	deduped := NewSnapshot(mirrored, 200, "", r)
	if deduped.Generator != "no-symmetries" || canonical.GeneratorName() != "canonical" {
		t.Fatalf("generators = %q, %q", canonical.Generator, deduped.Generator)
	}
	if canonical.ContentHash == deduped.ContentHash {
		t.Error("different generators hashed equally")
	}
	if d := Diff(canonical, deduped); d.SameSpace || d.Identical {
		t.Errorf("SameSpace=%v Identical=%v across generators", d.SameSpace, d.Identical)
	}

	// Snapshots saved before the generator was recorded searched the
	// canonical space.
	legacy := *canonical
	legacy.Generator = ""
	if d := Diff(&legacy, canonical); !d.SameSpace {
		t.Error("legacy snapshot not treated as canonical")
	}
}
