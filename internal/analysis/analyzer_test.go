package analysis

import (
	"strings"
	"testing"

	"github.com/efebarandurmaz/bbsearch/internal/machine"
)

func mustParse(t *testing.T, text string) machine.Machine {
	t.Helper()
	m, err := machine.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return m
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		machine string
		want    Verdict
	}{
		{"no halt slot", "1RB1LA_1LA1RB", NoHaltTransition},
		{"single state loop", "1RA0LA", NoHaltTransition},
		{"halt only on 1, tape stays blank", "0RB1LH_0LA1LB", HaltUnreachable},
		{"halting state never entered", "1RA0LA_1LH1LH", HaltUnreachable},
		{"halt on blank edge", "1RB1LB_1LA1LH", Inconclusive},
		{"written 1 opens read-1 edges", "1RB0LA_0LA1LH", Inconclusive},
		{"start halts", "1LH0LA", Inconclusive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Analyze(mustParse(t, tt.machine)); got != tt.want {
				t.Errorf("Analyze(%s) = %s, want %s", tt.machine, got, tt.want)
			}
		})
	}
}

func TestReachable(t *testing.T) {
	tests := []struct {
		machine string
		want    uint64
	}{
		{"1RA0LA_1LH1LH", 0b01},
		{"1RB1LB_1LA1LH", 0b11},
		{"1RC1LC_1LH1LH_0LA0LA", 0b101},
		{"1LH0LA", 0b1},
	}
	for _, tt := range tests {
		if got := Reachable(mustParse(t, tt.machine)); got != tt.want {
			t.Errorf("Reachable(%s) = %b, want %b", tt.machine, got, tt.want)
		}
	}
}

func TestVerdictString(t *testing.T) {
	if NoHaltTransition.String() != "no_halt_transition" {
		t.Errorf("got %q", NoHaltTransition.String())
	}
	if HaltUnreachable.String() != "halt_unreachable" {
		t.Errorf("got %q", HaltUnreachable.String())
	}
	if Inconclusive.String() != "inconclusive" {
		t.Errorf("got %q", Inconclusive.String())
	}
}

func TestBuildGraph(t *testing.T) {
	g := BuildGraph(mustParse(t, "1RA0LA_1LH1LH"))
	if len(g.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(g.Nodes))
	}
	if len(g.Edges) != 4 {
		t.Fatalf("edges = %d, want 4", len(g.Edges))
	}
	if !g.Nodes[0].Reachable || g.Nodes[1].Reachable {
		t.Errorf("reachability = %v", g.Nodes)
	}
	if !g.Nodes[2].Halt || g.Nodes[2].ID != "H" {
		t.Errorf("last node = %+v, want halt", g.Nodes[2])
	}
	if g.Verdict != HaltUnreachable {
		t.Errorf("verdict = %s", g.Verdict)
	}
}

func TestExportDOT(t *testing.T) {
	dot := ExportDOT(BuildGraph(mustParse(t, "1RB1LB_1LA1LH")))
	for _, want := range []string{
		"digraph machine {",
		`"A" -> "B" [label="0/1R" style=solid];`,
		`"B" -> "H" [label="1/1L" style=bold];`,
		`"H" [shape=doublecircle`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestExportMermaid(t *testing.T) {
	out := ExportMermaid(BuildGraph(mustParse(t, "1RB1LB_1LA1LH")))
	for _, want := range []string{"graph LR", "H((H))", "B ==>|1/1L| H", "A -->|1/1L| B"} {
		if !strings.Contains(out, want) {
			t.Errorf("Mermaid output missing %q:\n%s", want, out)
		}
	}
}

func TestExportJSON(t *testing.T) {
	data, err := ExportJSON(BuildGraph(mustParse(t, "1RB1LA_1LA1RB")))
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !strings.Contains(string(data), `"verdict": "no_halt_transition"`) {
		t.Errorf("JSON missing verdict:\n%s", data)
	}
}
