package alarm

// Latch is a "currently active" flag that lets a threshold fire once per
// excursion.
type Latch struct {
	active bool
}

// Set raises the latch and reports whether it was down (a rising edge).
func (l *Latch) Set() bool {
	if l.active {
		return false
	}
	l.active = true
	return true
}

// Clear lowers the latch and reports whether it was up.
func (l *Latch) Clear() bool {
	was := l.active
	l.active = false
	return was
}

func (l *Latch) Active() bool { return l.active }
