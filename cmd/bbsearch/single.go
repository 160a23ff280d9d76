package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/efebarandurmaz/bbsearch/internal/analysis"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
	"github.com/efebarandurmaz/bbsearch/internal/machine"
	"github.com/efebarandurmaz/bbsearch/internal/observability"
	"github.com/efebarandurmaz/bbsearch/internal/sim"
)

type singleOptions struct {
	text     string
	states   int
	index    uint64
	id       uint64
	byID     bool
	maxSteps uint32
	graph    string
	journal  string
}

var errNoMachine = errors.New("give a machine in 1RB1LB_1LA1LH notation or -n with --index or --id")

// resolve returns the machine to inspect and the space it belongs to.
func (o singleOptions) resolve() (machine.Machine, *enumerate.Space, error) {
	if o.text != "" {
		m, err := machine.Parse(o.text)
		if err != nil {
			return machine.Machine{}, nil, err
		}
		space, err := enumerate.NewSpace(int(m.States()))
		if err != nil {
			return machine.Machine{}, nil, err
		}
		return m, space, nil
	}
	if o.states == 0 {
		return machine.Machine{}, nil, errNoMachine
	}
	space, err := enumerate.NewSpace(o.states)
	if err != nil {
		return machine.Machine{}, nil, err
	}
	if o.byID {
		m, err := machine.FromID(o.id, o.states)
		if err != nil {
			return machine.Machine{}, nil, err
		}
		return m, space, nil
	}
	if o.index >= space.Size() {
		return machine.Machine{}, nil, fmt.Errorf("index %d out of range: %d-state space has %d machines", o.index, o.states, space.Size())
	}
	return space.At(o.index), space, nil
}

func runSingle(ctx context.Context, opts singleOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.maxSteps == 0 {
		return errors.New("max-steps must be at least 1")
	}
	switch opts.graph {
	case "", "dot", "mermaid", "json":
	default:
		return fmt.Errorf("unknown graph format %q (want dot, mermaid or json)", opts.graph)
	}

	m, space, err := opts.resolve()
	if err != nil {
		return err
	}
	index, err := space.Encode(m)
	if err != nil {
		return err
	}

	_, span := observability.StartSingleSpan(ctx, m.String())
	defer span.End()

	c := classify.New(opts.maxSteps).Classify(m)
	verdict := analysis.Analyze(m)

	// The simulation is shown even when the classifier decided without one.
	simulator := sim.NewSimulator(opts.maxSteps)
	outcome := simulator.Run(m)

	fmt.Fprintf(w, "Machine:         %s\n", m)
	fmt.Fprintf(w, "Index:           %d of %d\n", index, space.Size())
	fmt.Fprintf(w, "ID:              %d\n", m.ID())
	writeTable(w, m)
	fmt.Fprintf(w, "Static analysis: %s\n", verdict)
	category := c.Category.String()
	if c.Halted() {
		category = "halted"
	}
	fmt.Fprintf(w, "Classification:  %s", category)
	if c.Halted() {
		fmt.Fprintf(w, " (%d steps, %d ones)", c.Steps, c.Score)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Simulation:      %s after %d steps", outcome.Kind, outcome.Steps)
	if outcome.Kind == sim.Halted {
		fmt.Fprintf(w, " with %d ones", outcome.Ones)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tape:            %s\n", tapeOrBlank(simulator.Tape()))

	if opts.graph != "" {
		g := analysis.BuildGraph(m)
		fmt.Fprintln(w)
		switch opts.graph {
		case "dot":
			fmt.Fprint(w, analysis.ExportDOT(g))
		case "mermaid":
			fmt.Fprint(w, analysis.ExportMermaid(g))
		case "json":
			data, err := analysis.ExportJSON(g)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", data)
		}
	}

	journal, err := observability.NewJournal(&observability.JournalConfig{OutputPath: opts.journal})
	if err != nil {
		return err
	}
	defer journal.Close()
	return journal.LogSingle(m.String(), index, category, c.Steps, c.Score)
}

func writeTable(w io.Writer, m machine.Machine) {
	fmt.Fprintf(w, "Table:           %-6s %-6s\n", "read 0", "read 1")
	for s := uint8(0); s < m.States(); s++ {
		cells := [2]string{}
		for r := uint8(0); r < 2; r++ {
			a := m.Action(s, r)
			cells[r] = fmt.Sprintf("%d%s%c", a.Write(), a.Move(), m.StateName(a.Next()))
		}
		fmt.Fprintf(w, "             %c   %-6s %-6s\n", m.StateName(s), cells[0], cells[1])
	}
}

func tapeOrBlank(t *sim.Tape) string {
	if _, _, ok := t.Window(); !ok {
		return "(blank)"
	}
	return t.String()
}
