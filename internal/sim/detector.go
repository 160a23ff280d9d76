package sim

// RunawayDetector recognises machines that run off into blank tape for
// ever. It is fed one snapshot per step: the current state and whether the
// head sits outside the written window. A streak of fresh cells means the
// head is moving steadily outwards and every read is a 0, so once a state
// repeats within a streak the machine repeats the same steps indefinitely.
type RunawayDetector struct {
	seen uint64
}

// Observe records one step and reports whether a runaway was proven.
func (d *RunawayDetector) Observe(state uint8, fresh bool) bool {
	if !fresh {
		d.seen = 0
		return false
	}
	bit := uint64(1) << state
	if d.seen&bit != 0 {
		return true
	}
	d.seen |= bit
	return false
}

// Reset forgets the current streak.
func (d *RunawayDetector) Reset() { d.seen = 0 }
