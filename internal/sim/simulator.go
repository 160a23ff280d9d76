// Package sim runs machines on a blank tape for a bounded number of steps.
package sim

import "github.com/efebarandurmaz/bbsearch/internal/machine"

// DefaultMaxSteps is the step bound used when none is configured.
const DefaultMaxSteps = 200

// Kind is the way a simulation ended.
type Kind uint8

const (
	Halted Kind = iota
	ImmediateRunaway
	RunawayLoop
	StepBoundExceeded
)

func (k Kind) String() string {
	switch k {
	case Halted:
		return "halted"
	case ImmediateRunaway:
		return "immediate_runaway"
	case RunawayLoop:
		return "runaway_loop"
	case StepBoundExceeded:
		return "step_bound_exceeded"
	default:
		return "unknown"
	}
}

// Outcome is the result of running one machine. Steps counts executed
// steps; Ones is only meaningful for Halted.
type Outcome struct {
	Kind  Kind
	Steps uint32
	Ones  uint32
}

// Precheck decides the machine from its start transition alone. A start
// transition into halt stops after one step; one that stays in state 0
// moves onto blank tape again and again.
func Precheck(m machine.Machine) (Outcome, bool) {
	a := m.Start()
	switch {
	case m.Halts(a):
		return Outcome{Kind: Halted, Steps: 1, Ones: uint32(a.Write())}, true
	case a.Next() == 0:
		return Outcome{Kind: ImmediateRunaway, Steps: 1}, true
	}
	return Outcome{}, false
}

// Simulator runs machines one after another, reusing its tape. It is not
// safe for concurrent use.
type Simulator struct {
	maxSteps uint32
	tape     *Tape
	detector RunawayDetector
}

// NewSimulator returns a simulator with the given step bound. A zero bound
// selects DefaultMaxSteps.
func NewSimulator(maxSteps uint32) *Simulator {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Simulator{
		maxSteps: maxSteps,
		tape:     NewTape(int(min(maxSteps, 1<<16))),
	}
}

// MaxSteps returns the step bound.
func (s *Simulator) MaxSteps() uint32 { return s.maxSteps }

// Tape returns the tape of the last run. It is overwritten by the next run.
func (s *Simulator) Tape() *Tape { return s.tape }

// Run simulates m from state 0 on a blank tape. A machine halting on the
// bound step is Halted; one still running after it is StepBoundExceeded.
func (s *Simulator) Run(m machine.Machine) Outcome {
	t := s.tape
	t.Reset()
	s.detector.Reset()

	var (
		state uint8
		head  int
		steps uint32
	)
	for {
		if s.detector.Observe(state, !t.Written(head)) {
			return Outcome{Kind: RunawayLoop, Steps: steps}
		}
		steps++

		a := m.Action(state, t.Get(head))
		t.Set(head, a.Write())
		if m.Halts(a) {
			return Outcome{Kind: Halted, Steps: steps, Ones: t.Ones()}
		}
		head += a.Move().Delta()
		state = a.Next()

		if steps == s.maxSteps {
			return Outcome{Kind: StepBoundExceeded, Steps: steps}
		}
	}
}
