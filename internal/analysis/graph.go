package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/bbsearch/internal/machine"
)

// Node is one state of the transition graph.
type Node struct {
	ID        string `json:"id"`
	Halt      bool   `json:"halt,omitempty"`
	Reachable bool   `json:"reachable"`
}

// Edge is one transition slot.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Read  uint8  `json:"read"`
	Write uint8  `json:"write"`
	Move  string `json:"move"`
	Halts bool   `json:"halts,omitempty"`
}

// Label renders the edge as "read/write move".
func (e Edge) Label() string {
	return fmt.Sprintf("%d/%d%s", e.Read, e.Write, e.Move)
}

// Graph is the state-transition graph of one machine.
type Graph struct {
	Machine string  `json:"machine"`
	Verdict Verdict `json:"verdict"`
	Nodes   []Node  `json:"nodes"`
	Edges   []Edge  `json:"edges"`
}

// BuildGraph returns the transition graph of m, including the halt state.
func BuildGraph(m machine.Machine) *Graph {
	reachable := Reachable(m)
	g := &Graph{Machine: m.String(), Verdict: Analyze(m)}

	for s := uint8(0); s <= m.Halt(); s++ {
		g.Nodes = append(g.Nodes, Node{
			ID:        string(m.StateName(s)),
			Halt:      s == m.Halt(),
			Reachable: s == m.Halt() || reachable&(1<<s) != 0,
		})
	}
	for s := uint8(0); s < m.States(); s++ {
		for r := uint8(0); r < 2; r++ {
			a := m.Action(s, r)
			g.Edges = append(g.Edges, Edge{
				From:  string(m.StateName(s)),
				To:    string(m.StateName(a.Next())),
				Read:  r,
				Write: a.Write(),
				Move:  a.Move().String(),
				Halts: m.Halts(a),
			})
		}
	}
	return g
}

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph machine {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n")
	b.WriteString(fmt.Sprintf("  label=\"%s (%s)\";\n\n", g.Machine, g.Verdict))

	for _, n := range g.Nodes {
		b.WriteString(fmt.Sprintf("  \"%s\" [shape=%s style=filled fillcolor=\"%s\"];\n",
			n.ID, nodeShape(n), nodeColor(n)))
	}
	b.WriteString("\n")

	for _, e := range g.Edges {
		style := "solid"
		if e.Halts {
			style = "bold"
		}
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\" style=%s];\n",
			e.From, e.To, e.Label(), style))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, n := range g.Nodes {
		if n.Halt {
			b.WriteString(fmt.Sprintf("  %s((%s))\n", n.ID, n.ID))
		} else {
			b.WriteString(fmt.Sprintf("  %s[%s]\n", n.ID, n.ID))
		}
	}
	for _, e := range g.Edges {
		arrow := "-->"
		if e.Halts {
			arrow = "==>"
		}
		b.WriteString(fmt.Sprintf("  %s %s|%s| %s\n", e.From, arrow, e.Label(), e.To))
	}
	return b.String()
}

// ExportJSON serializes the graph as indented JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

func nodeShape(n Node) string {
	if n.Halt {
		return "doublecircle"
	}
	return "circle"
}

func nodeColor(n Node) string {
	switch {
	case n.Halt:
		return "#3fb950"
	case !n.Reachable:
		return "#8b949e"
	default:
		return "#58a6ff"
	}
}
