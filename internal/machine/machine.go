// Package machine describes N-state, 2-symbol Turing machines.
package machine

import (
	"fmt"
	"strings"
)

// MaxStates is the largest state count whose enumeration index fits in a uint64.
const MaxStates = 6

// Move is the head movement of one transition.
type Move uint8

const (
	Left Move = iota
	Right
)

func (m Move) String() string {
	if m == Right {
		return "R"
	}
	return "L"
}

// Delta returns the head offset of the move.
func (m Move) Delta() int {
	if m == Right {
		return 1
	}
	return -1
}

// Action is one transition packed into a byte:
// bit 0 is the written symbol, bit 1 the move (1 = right) and the
// remaining bits the next state. A next state equal to the machine's
// state count is the halt state.
type Action uint8

// NewAction packs a transition.
func NewAction(write uint8, move Move, next uint8) Action {
	return Action(write&1) | Action(move&1)<<1 | Action(next)<<2
}

// Write returns the symbol written to the tape.
func (a Action) Write() uint8 { return uint8(a & 1) }

// Move returns the head movement.
func (a Action) Move() Move { return Move(a>>1) & 1 }

// Next returns the next state. It equals the state count for halt.
func (a Action) Next() uint8 { return uint8(a >> 2) }

// Machine is the immutable transition table of a candidate machine.
// Slot 2*s+r holds the action for state s reading symbol r. Start state is 0.
type Machine struct {
	states  uint8
	actions [2 * MaxStates]Action
}

// New builds a machine from its 2N actions. It panics on a malformed table.
func New(actions ...Action) Machine {
	if len(actions) == 0 || len(actions)%2 != 0 || len(actions) > 2*MaxStates {
		panic(fmt.Sprintf("machine: invalid slot count %d", len(actions)))
	}
	m := Machine{states: uint8(len(actions) / 2)}
	for i, a := range actions {
		if a.Next() > m.states {
			panic(fmt.Sprintf("machine: slot %d targets state %d of %d", i, a.Next(), m.states))
		}
		m.actions[i] = a
	}
	return m
}

// States returns N.
func (m Machine) States() uint8 { return m.states }

// Halt returns the pseudo state value that denotes halting.
func (m Machine) Halt() uint8 { return m.states }

// Slots returns the number of transition slots, 2N.
func (m Machine) Slots() int { return 2 * int(m.states) }

// Slot returns the action stored in slot i.
func (m Machine) Slot(i int) Action { return m.actions[i] }

// WithSlot returns a copy of m with slot i replaced by a. The caller
// guarantees that a targets a state of m or halt.
func (m Machine) WithSlot(i int, a Action) Machine {
	m.actions[i] = a
	return m
}

// Action returns the transition for state reading symbol.
func (m Machine) Action(state, symbol uint8) Action {
	return m.actions[2*int(state)+int(symbol)]
}

// Halts reports whether a halts the machine.
func (m Machine) Halts(a Action) bool { return a.Next() == m.states }

// Start returns the action taken on the first step (state 0 on a blank cell).
func (m Machine) Start() Action { return m.actions[0] }

// HasHalt reports whether any slot targets the halt state.
func (m Machine) HasHalt() bool {
	for i := 0; i < m.Slots(); i++ {
		if m.Halts(m.actions[i]) {
			return true
		}
	}
	return false
}

// Canonical returns m with every halting transition moving left. The head
// direction of a halting transition never influences the outcome.
func (m Machine) Canonical() Machine {
	for i := 0; i < m.Slots(); i++ {
		if a := m.actions[i]; m.Halts(a) {
			m.actions[i] = NewAction(a.Write(), Left, a.Next())
		}
	}
	return m
}

// StateName returns the letter for state s, H for halt.
func (m Machine) StateName(s uint8) byte {
	if s == m.states {
		return 'H'
	}
	return 'A' + s
}

// String renders the table in the compact "1RB1LB_1LA1LH" notation.
func (m Machine) String() string {
	var b strings.Builder
	for s := uint8(0); s < m.states; s++ {
		if s > 0 {
			b.WriteByte('_')
		}
		for r := uint8(0); r < 2; r++ {
			a := m.Action(s, r)
			b.WriteByte('0' + a.Write())
			b.WriteString(a.Move().String())
			b.WriteByte(m.StateName(a.Next()))
		}
	}
	return b.String()
}

// Parse reads the compact notation produced by String. Z is accepted as
// an alias for H.
func Parse(text string) (Machine, error) {
	groups := strings.Split(strings.TrimSpace(text), "_")
	n := len(groups)
	if n < 1 || n > MaxStates {
		return Machine{}, fmt.Errorf("parse machine %q: %d states, want 1..%d", text, n, MaxStates)
	}
	actions := make([]Action, 0, 2*n)
	for s, g := range groups {
		if len(g) != 6 {
			return Machine{}, fmt.Errorf("parse machine %q: state %c: want 6 characters, got %q", text, 'A'+s, g)
		}
		for r := 0; r < 2; r++ {
			a, err := parseAction(g[3*r:3*r+3], uint8(n))
			if err != nil {
				return Machine{}, fmt.Errorf("parse machine %q: state %c reading %d: %w", text, 'A'+s, r, err)
			}
			actions = append(actions, a)
		}
	}
	return New(actions...), nil
}

func parseAction(t string, states uint8) (Action, error) {
	var write uint8
	switch t[0] {
	case '0':
	case '1':
		write = 1
	default:
		return 0, fmt.Errorf("invalid symbol %q", t[0])
	}
	var move Move
	switch t[1] {
	case 'L':
	case 'R':
		move = Right
	default:
		return 0, fmt.Errorf("invalid move %q", t[1])
	}
	var next uint8
	switch c := t[2]; {
	case c == 'H' || c == 'Z':
		next = states
	case c >= 'A' && c < 'A'+states:
		next = c - 'A'
	default:
		return 0, fmt.Errorf("invalid state %q", c)
	}
	return NewAction(write, move, next), nil
}

// idBits is the width of one action in a packed machine ID.
const idBits = 5

// ID packs the machine into a uint64, five bits per slot with slot i at bit
// 5i. Each action is stored as next<<2 | move<<1 | (1-write).
func (m Machine) ID() uint64 {
	var id uint64
	for i := m.Slots() - 1; i >= 0; i-- {
		id = id<<idBits | uint64(m.actions[i]^1)
	}
	return id
}

// FromID unpacks an ID produced by ID for a machine with the given number
// of states.
func FromID(id uint64, states int) (Machine, error) {
	if states < 1 || states > MaxStates {
		return Machine{}, fmt.Errorf("machine id %d: %d states, want 1..%d", id, states, MaxStates)
	}
	slots := 2 * states
	if id>>(idBits*uint(slots)) != 0 {
		return Machine{}, fmt.Errorf("machine id %d: bits set beyond %d slots", id, slots)
	}
	actions := make([]Action, slots)
	for i := range actions {
		a := Action(id>>(idBits*uint(i))&(1<<idBits-1)) ^ 1
		if int(a.Next()) > states {
			return Machine{}, fmt.Errorf("machine id %d: slot %d targets state %d of %d", id, i, a.Next(), states)
		}
		actions[i] = a
	}
	return New(actions...), nil
}
