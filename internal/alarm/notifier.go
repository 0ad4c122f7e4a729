package alarm

import "slices"

// Listener receives events.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// ID identifies a registration.
type ID uint64

type registration struct {
	id ID
	l  Listener
}

// Notifier keeps the ordered listener list. A listener panic is not
// recovered; it unwinds into the code that triggered the event.
type Notifier struct {
	regs []registration
	next ID
}

// Add registers l and returns its ID.
func (n *Notifier) Add(l Listener) ID {
	n.next++
	n.regs = append(n.regs, registration{id: n.next, l: l})
	return n.next
}

// Remove unregisters id, reporting whether it was present.
func (n *Notifier) Remove(id ID) bool {
	i := slices.IndexFunc(n.regs, func(r registration) bool { return r.id == id })
	if i < 0 {
		return false
	}
	n.regs = slices.Delete(n.regs, i, i+1)
	return true
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int { return len(n.regs) }

// Dispatch delivers e to every listener registered when the call began.
func (n *Notifier) Dispatch(e Event) {
	for _, r := range slices.Clone(n.regs) {
		r.l.OnEvent(e.clone())
	}
}

// Recorder is a Listener that keeps every event it sees.
type Recorder struct {
	events []Event
}

func (r *Recorder) OnEvent(e Event) { r.events = append(r.events, e) }

// Events returns the recorded events in arrival order.
func (r *Recorder) Events() []Event { return slices.Clone(r.events) }

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() { r.events = nil }
