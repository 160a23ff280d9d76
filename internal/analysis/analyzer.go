// Package analysis decides, from the transition table alone, whether a
// machine can never halt.
package analysis

import "github.com/efebarandurmaz/bbsearch/internal/machine"

// Verdict is the result of static analysis.
type Verdict uint8

const (
	// Inconclusive means the machine has to be simulated.
	Inconclusive Verdict = iota
	// NoHaltTransition means no transition targets the halt state.
	NoHaltTransition
	// HaltUnreachable means halting transitions exist but none is
	// reachable from the start state.
	HaltUnreachable
)

func (v Verdict) String() string {
	switch v {
	case NoHaltTransition:
		return "no_halt_transition"
	case HaltUnreachable:
		return "halt_unreachable"
	default:
		return "inconclusive"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Analyze returns the static verdict for m. It is pure and allocation free.
func Analyze(m machine.Machine) Verdict {
	if !m.HasHalt() {
		return NoHaltTransition
	}

	// A blank tape only shows 1s after some reachable transition wrote one,
	// so read-1 edges are ignored until such a transition is found.
	halt, writesOne := reach(m, false)
	if !halt && writesOne {
		halt, _ = reach(m, true)
	}
	if !halt {
		return HaltUnreachable
	}
	return Inconclusive
}

// reach walks the state graph from state 0. With ones false only read-0
// edges are followed. It reports whether a halting transition was
// followed and whether any visited read-0 transition writes a 1.
func reach(m machine.Machine, ones bool) (halt, writesOne bool) {
	symbols := uint8(1)
	if ones {
		symbols = 2
	}

	visited := uint64(1)
	var stack [machine.MaxStates]uint8
	top := 1
	for top > 0 {
		top--
		state := stack[top]

		for r := uint8(0); r < symbols; r++ {
			a := m.Action(state, r)
			if r == 0 && a.Write() == 1 {
				writesOne = true
			}
			if m.Halts(a) {
				return true, writesOne
			}
			if next := a.Next(); visited&(1<<next) == 0 {
				visited |= 1 << next
				stack[top] = next
				top++
			}
		}
	}
	return false, writesOne
}

// Reachable returns the set of states reachable from the start state
// following both read-0 and read-1 edges, as a bitmask.
func Reachable(m machine.Machine) uint64 {
	var visited uint64
	var walk func(s uint8)
	walk = func(s uint8) {
		if s == m.Halt() || visited&(1<<s) != 0 {
			return
		}
		visited |= 1 << s
		walk(m.Action(s, 0).Next())
		walk(m.Action(s, 1).Next())
	}
	walk(0)
	return visited
}
