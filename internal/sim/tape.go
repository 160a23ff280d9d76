package sim

// Tape is a two-way unbounded binary tape backed by one flat buffer.
// Positions are relative to the origin cell 0; the buffer grows in either
// direction on demand and new cells read as 0. The tape remembers the
// window of cells that have been written, which is also the window of
// cells the head has visited.
type Tape struct {
	cells   []byte
	origin  int
	lo, hi  int
	written bool
}

// NewTape returns a tape with room for about capacity cells on each side
// of the origin before it has to grow.
func NewTape(capacity int) *Tape {
	if capacity < 1 {
		capacity = 1
	}
	return &Tape{
		cells:  make([]byte, 2*capacity+1),
		origin: capacity,
	}
}

// Get returns the symbol at pos.
func (t *Tape) Get(pos int) uint8 {
	i := t.origin + pos
	if i < 0 || i >= len(t.cells) {
		return 0
	}
	return t.cells[i]
}

// Set writes v at pos and extends the written window to cover it.
func (t *Tape) Set(pos int, v uint8) {
	i := t.origin + pos
	switch {
	case i < 0:
		t.growLeft(-i)
		i = t.origin + pos
	case i >= len(t.cells):
		t.growRight(i - len(t.cells) + 1)
	}
	t.cells[i] = v

	switch {
	case !t.written:
		t.lo, t.hi, t.written = pos, pos, true
	case pos < t.lo:
		t.lo = pos
	case pos > t.hi:
		t.hi = pos
	}
}

func (t *Tape) growLeft(need int) {
	extra := max(need, len(t.cells))
	cells := make([]byte, len(t.cells)+extra)
	copy(cells[extra:], t.cells)
	t.cells = cells
	t.origin += extra
}

func (t *Tape) growRight(need int) {
	extra := max(need, len(t.cells))
	t.cells = append(t.cells, make([]byte, extra)...)
}

// Written reports whether pos lies inside the written window.
func (t *Tape) Written(pos int) bool {
	return t.written && pos >= t.lo && pos <= t.hi
}

// Window returns the inclusive bounds of the written window. ok is false
// for a tape that has not been written.
func (t *Tape) Window() (lo, hi int, ok bool) {
	return t.lo, t.hi, t.written
}

// Ones counts the 1 cells.
func (t *Tape) Ones() uint32 {
	if !t.written {
		return 0
	}
	var n uint32
	for _, c := range t.cells[t.origin+t.lo : t.origin+t.hi+1] {
		n += uint32(c)
	}
	return n
}

// String renders the written window as a run of 0 and 1 digits.
func (t *Tape) String() string {
	if !t.written {
		return ""
	}
	window := t.cells[t.origin+t.lo : t.origin+t.hi+1]
	out := make([]byte, len(window))
	for i, c := range window {
		out[i] = '0' + c
	}
	return string(out)
}

// Reset blanks the written window so the buffer can be reused.
func (t *Tape) Reset() {
	if t.written {
		clear(t.cells[t.origin+t.lo : t.origin+t.hi+1])
	}
	t.lo, t.hi, t.written = 0, 0, false
}
