// Package classify assigns every machine exactly one outcome category.
package classify

import (
	"fmt"

	"github.com/efebarandurmaz/bbsearch/internal/analysis"
	"github.com/efebarandurmaz/bbsearch/internal/machine"
	"github.com/efebarandurmaz/bbsearch/internal/sim"
)

// Category is an outcome bucket of the search report.
type Category uint8

const (
	// HighScore holds halting machines that wrote the most 1s.
	HighScore Category = iota
	// HaltedOther holds every other halting machine.
	HaltedOther
	// HaltedFirstStep tags halting machines that stopped on step one. It
	// overlaps HighScore and HaltedOther.
	HaltedFirstStep
	ImmediateRunaway
	NoHaltTransition
	HaltUnreachable
	RunawayLoop
	StepBoundExceeded

	numCategories
)

// Categories lists every category in report order.
var Categories = []Category{
	HighScore,
	HaltedOther,
	HaltedFirstStep,
	ImmediateRunaway,
	NoHaltTransition,
	HaltUnreachable,
	RunawayLoop,
	StepBoundExceeded,
}

// NumCategories is the number of distinct categories.
const NumCategories = int(numCategories)

var categoryNames = [...]string{
	HighScore:         "high_score",
	HaltedOther:       "halted_other",
	HaltedFirstStep:   "halted_first_step",
	ImmediateRunaway:  "immediate_runaway",
	NoHaltTransition:  "no_halt_transition",
	HaltUnreachable:   "halt_unreachable",
	RunawayLoop:       "runaway_loop",
	StepBoundExceeded: "step_bound_exceeded",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Partitioned reports whether c belongs to the partition of the space.
// HaltedFirstStep is a cross-cutting tag and does not.
func (c Category) Partitioned() bool { return c != HaltedFirstStep && c < numCategories }

// Classification is the per-machine result. Halting machines are reported
// as HaltedOther; whether one of them holds the high score is only known
// once every machine has been seen.
type Classification struct {
	Category Category
	Steps    uint32
	Score    uint32
}

// Halted reports whether the machine halted.
func (c Classification) Halted() bool {
	return c.Category == HaltedOther || c.Category == HighScore
}

// FirstStep reports whether the machine halted on its first step.
func (c Classification) FirstStep() bool { return c.Halted() && c.Steps == 1 }

// Classifier runs the start-transition pre-check, then static analysis,
// then bounded simulation. It owns a simulator and is not safe for
// concurrent use.
type Classifier struct {
	sim *sim.Simulator
}

// New returns a classifier simulating at most maxSteps steps.
func New(maxSteps uint32) *Classifier {
	return &Classifier{sim: sim.NewSimulator(maxSteps)}
}

// Simulator exposes the underlying simulator, whose tape holds the final
// configuration of the last simulated machine.
func (c *Classifier) Simulator() *sim.Simulator { return c.sim }

// Classify returns the classification of m.
func (c *Classifier) Classify(m machine.Machine) Classification {
	if o, ok := sim.Precheck(m); ok {
		return fromOutcome(o)
	}
	switch analysis.Analyze(m) {
	case analysis.NoHaltTransition:
		return Classification{Category: NoHaltTransition}
	case analysis.HaltUnreachable:
		return Classification{Category: HaltUnreachable}
	}
	return fromOutcome(c.sim.Run(m))
}

func fromOutcome(o sim.Outcome) Classification {
	switch o.Kind {
	case sim.Halted:
		return Classification{Category: HaltedOther, Steps: o.Steps, Score: o.Ones}
	case sim.ImmediateRunaway:
		return Classification{Category: ImmediateRunaway, Steps: o.Steps}
	case sim.RunawayLoop:
		return Classification{Category: RunawayLoop, Steps: o.Steps}
	case sim.StepBoundExceeded:
		return Classification{Category: StepBoundExceeded, Steps: o.Steps}
	}
	panic(fmt.Sprintf("classify: unknown simulation outcome %d", o.Kind))
}
