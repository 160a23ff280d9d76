// Package enumerate maps enumeration indices to machines and back.
//
// Every slot of an N-state table is a digit; slot 0 is the least
// significant one. Which actions a slot may hold depends on the Generator.
// In the default canonical space every slot is a digit in base 4N+2: the 4N
// non-halting actions followed by the two halting actions (write 1, write
// 0). Halting transitions always move left since the direction of the
// final step cannot change the outcome.
package enumerate

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"

	"github.com/efebarandurmaz/bbsearch/internal/machine"
)

// ErrTooManyStates is returned when the index space does not fit a uint64.
var ErrTooManyStates = errors.New("state count out of range")

// ErrUnknownGenerator is returned by ParseGenerator.
var ErrUnknownGenerator = errors.New("unknown generator")

// ErrNotInSpace is returned by Encode for a machine the generator skips.
var ErrNotInSpace = errors.New("machine not in space")

// Generator selects which machines a Space enumerates.
type Generator uint8

const (
	// Canonical holds every machine with halting transitions folded to
	// move left. It is the default.
	Canonical Generator = iota
	// All holds every machine, halting transitions in both directions.
	All
	// NoSymmetries is All with mirror images removed: the last state's
	// read-1 transition always moves left. Every machine of All is either
	// in it or has its mirror image in it, so it holds exactly half of All
	// and every outcome count is halved.
	NoSymmetries
	// Optimized is Canonical without halting transitions that write 0,
	// and with the last state's read-1 transition moving left. It changes
	// the outcome distribution but never the high score.
	Optimized
)

// Generators lists every generator.
var Generators = []Generator{Canonical, All, NoSymmetries, Optimized}

var generatorNames = [...]string{
	Canonical:    "canonical",
	All:          "all",
	NoSymmetries: "no-symmetries",
	Optimized:    "optimized",
}

var generatorDescriptions = [...]string{
	Canonical:    "All machines, halting transitions moving left",
	All:          "All machines",
	NoSymmetries: "All machines but mirrored pairs deduplicated",
	Optimized:    "Canonical machines without mirrored pairs and without halting transitions writing 0",
}

func (g Generator) String() string {
	if int(g) < len(generatorNames) {
		return generatorNames[g]
	}
	return fmt.Sprintf("generator(%d)", uint8(g))
}

// Description returns a one-line description of the enumerated machines.
func (g Generator) Description() string {
	if int(g) < len(generatorDescriptions) {
		return generatorDescriptions[g]
	}
	return g.String()
}

// MarshalText implements encoding.TextMarshaler.
func (g Generator) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// ParseGenerator maps a generator name to its value. The empty string
// selects Canonical.
func ParseGenerator(name string) (Generator, error) {
	if name == "" {
		return Canonical, nil
	}
	for _, g := range Generators {
		if g.String() == name {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w %q (want canonical, all, no-symmetries or optimized)", ErrUnknownGenerator, name)
}

// foldsHalt reports whether halting transitions are stored moving left only.
func (g Generator) foldsHalt() bool { return g == Canonical || g == Optimized }

// mirrored reports whether the last slot is restricted to left moves.
func (g Generator) mirrored() bool { return g == NoSymmetries || g == Optimized }

// Space is the ordered set of machines with N states produced by one
// generator.
type Space struct {
	states uint8
	gen    Generator
	size   uint64
	// digits[i] maps a digit value of slot i to its action; index[i] maps
	// an action back, -1 for actions the slot cannot hold.
	digits [2 * machine.MaxStates][]machine.Action
	index  [2 * machine.MaxStates][256]int16
}

// NewSpace returns the canonical space for the given state count.
func NewSpace(states int) (*Space, error) {
	return NewGeneratedSpace(states, Canonical)
}

// NewGeneratedSpace returns the space gen produces for the given state
// count.
func NewGeneratedSpace(states int, gen Generator) (*Space, error) {
	if states < 1 || states > machine.MaxStates {
		return nil, fmt.Errorf("%w: %d (supported: 1..%d)", ErrTooManyStates, states, machine.MaxStates)
	}
	if int(gen) >= len(generatorNames) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, gen)
	}

	s := &Space{states: uint8(states), gen: gen, size: 1}
	full := slotActions(uint8(states), gen)
	slots := 2 * states
	for i := 0; i < slots; i++ {
		table := full
		if i == slots-1 && gen.mirrored() {
			table = leftOnly(full)
		}
		s.digits[i] = table
		for a := range s.index[i] {
			s.index[i][a] = -1
		}
		for d, a := range table {
			s.index[i][a] = int16(d)
		}

		hi, lo := bits.Mul64(s.size, uint64(len(table)))
		if hi != 0 {
			return nil, fmt.Errorf("%w: %d states overflow the index", ErrTooManyStates, states)
		}
		s.size = lo
	}
	return s, nil
}

// slotActions lists the actions of an unrestricted slot in digit order:
// non-halting actions by next state, move and written symbol (1 first),
// then the halting ones.
func slotActions(states uint8, gen Generator) []machine.Action {
	var out []machine.Action
	for next := uint8(0); next < states; next++ {
		for _, move := range []machine.Move{machine.Left, machine.Right} {
			out = append(out, machine.NewAction(1, move, next), machine.NewAction(0, move, next))
		}
	}
	switch gen {
	case Canonical:
		out = append(out, machine.NewAction(1, machine.Left, states), machine.NewAction(0, machine.Left, states))
	case All, NoSymmetries:
		for _, move := range []machine.Move{machine.Left, machine.Right} {
			out = append(out, machine.NewAction(1, move, states), machine.NewAction(0, move, states))
		}
	case Optimized:
		out = append(out, machine.NewAction(1, machine.Left, states))
	}
	return out
}

func leftOnly(actions []machine.Action) []machine.Action {
	out := make([]machine.Action, 0, len(actions)/2+1)
	for _, a := range actions {
		if a.Move() == machine.Left {
			out = append(out, a)
		}
	}
	return out
}

// Size returns the number of machines in the canonical space.
func Size(states int) (uint64, error) {
	return GeneratedSize(states, Canonical)
}

// GeneratedSize returns the number of machines gen produces.
func GeneratedSize(states int, gen Generator) (uint64, error) {
	s, err := NewGeneratedSpace(states, gen)
	if err != nil {
		return 0, err
	}
	return s.size, nil
}

// States returns N.
func (s *Space) States() int { return int(s.states) }

// Generator returns the generator that produced the space.
func (s *Space) Generator() Generator { return s.gen }

// Size returns the number of machines in the space.
func (s *Space) Size() uint64 { return s.size }

// Base returns the number of choices for transition slot i.
func (s *Space) Base(i int) uint64 { return uint64(len(s.digits[i])) }

// At decodes the machine with the given index. An index outside the space
// is a programming error and panics.
func (s *Space) At(index uint64) machine.Machine {
	if index >= s.size {
		panic(fmt.Sprintf("enumerate: index %d out of range [0, %d)", index, s.size))
	}
	var actions [2 * machine.MaxStates]machine.Action
	n := 2 * int(s.states)
	for i := 0; i < n; i++ {
		base := uint64(len(s.digits[i]))
		actions[i] = s.digits[i][index%base]
		index /= base
	}
	return machine.New(actions[:n]...)
}

// Encode returns the index of m. Generators that fold halting transitions
// read them in their canonical form, so At(Encode(m)) == m.Canonical()
// there. A machine the generator skips yields ErrNotInSpace.
func (s *Space) Encode(m machine.Machine) (uint64, error) {
	if m.States() != s.states {
		return 0, fmt.Errorf("encode: machine has %d states, space has %d", m.States(), s.states)
	}
	if s.gen.foldsHalt() {
		m = m.Canonical()
	}
	var index uint64
	for i := m.Slots() - 1; i >= 0; i-- {
		d := s.index[i][m.Slot(i)]
		if d < 0 {
			return 0, fmt.Errorf("encode %s: %w of generator %s", m, ErrNotInSpace, s.gen)
		}
		index = index*uint64(len(s.digits[i])) + uint64(d)
	}
	return index, nil
}

// Range yields the machines with indices in [start, end) in order. The
// mixed-radix counter is advanced in place, so consecutive machines cost a
// digit increment rather than a full decode.
func (s *Space) Range(start, end uint64) iter.Seq2[uint64, machine.Machine] {
	if start > end || end > s.size {
		panic(fmt.Sprintf("enumerate: range [%d, %d) outside [0, %d)", start, end, s.size))
	}
	return func(yield func(uint64, machine.Machine) bool) {
		if start == end {
			return
		}
		n := 2 * int(s.states)
		var counter [2 * machine.MaxStates]uint64
		rest := start
		for i := 0; i < n; i++ {
			base := uint64(len(s.digits[i]))
			counter[i] = rest % base
			rest /= base
		}
		current := s.At(start)

		for index := start; index < end; index++ {
			if !yield(index, current) {
				return
			}
			if index+1 == end {
				return
			}
			current = s.advance(current, &counter)
		}
	}
}

// advance increments the counter by one and returns the matching machine.
func (s *Space) advance(m machine.Machine, counter *[2 * machine.MaxStates]uint64) machine.Machine {
	for i := 0; i < m.Slots(); i++ {
		counter[i]++
		if counter[i] < uint64(len(s.digits[i])) {
			return m.WithSlot(i, s.digits[i][counter[i]])
		}
		counter[i] = 0
		m = m.WithSlot(i, s.digits[i][0])
	}
	return m
}

// Span is a half-open index range [Start, End).
type Span struct {
	Start uint64
	End   uint64
}

// Len returns the number of indices in the span.
func (sp Span) Len() uint64 { return sp.End - sp.Start }

// Partition splits the space into at most parts contiguous, disjoint spans
// covering every index. Span lengths differ by at most one.
func (s *Space) Partition(parts int) []Span {
	return Split(s.size, parts)
}

// Split splits [0, total) like Partition.
func Split(total uint64, parts int) []Span {
	if parts < 1 {
		parts = 1
	}
	if uint64(parts) > total {
		parts = int(total)
	}
	spans := make([]Span, 0, parts)
	if total == 0 {
		return spans
	}
	chunk := total / uint64(parts)
	extra := total % uint64(parts)
	var start uint64
	for i := 0; i < parts; i++ {
		length := chunk
		if uint64(i) < extra {
			length++
		}
		spans = append(spans, Span{Start: start, End: start + length})
		start += length
	}
	return spans
}
