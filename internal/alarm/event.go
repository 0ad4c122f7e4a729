// Package alarm carries compressor events from the threshold checks to
// whoever listens. Dispatch is synchronous and in registration order on
// the caller's goroutine.
package alarm

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind identifies an event.
type Kind int

const (
	SurgeApproach Kind = iota
	SurgeOccurred
	StoneWallApproach
	SpeedLimitExceeded
	SpeedBelowMinimum
	PowerLimitExceeded
	StateChange
	StartupComplete
	ShutdownComplete
)

var kindNames = [...]string{
	SurgeApproach:      "surge_approach",
	SurgeOccurred:      "surge_occurred",
	StoneWallApproach:  "stonewall_approach",
	SpeedLimitExceeded: "speed_limit_exceeded",
	SpeedBelowMinimum:  "speed_below_minimum",
	PowerLimitExceeded: "power_limit_exceeded",
	StateChange:        "state_change",
	StartupComplete:    "startup_complete",
	ShutdownComplete:   "shutdown_complete",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds lists every event kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// Payload keys used by the compressor.
const (
	KeyMargin   = "margin"
	KeySpeed    = "speed"
	KeyRatio    = "ratio"
	KeyPower    = "power"
	KeyMaxPower = "max_power"
	KeyCritical = "critical" // 1 for a critical surge approach
)

// Event is one occurrence. Listeners receive their own copy of Values.
type Event struct {
	Kind   Kind
	Time   float64 // simulation seconds
	Step   int64
	From   string // state before, StateChange only
	To     string // state after, StateChange only
	Values map[string]float64
}

// Value returns a payload entry.
func (e Event) Value(key string) (float64, bool) {
	v, ok := e.Values[key]
	return v, ok
}

// Critical reports whether a surge approach crossed the critical threshold.
func (e Event) Critical() bool {
	return e.Values[KeyCritical] != 0
}

func (e Event) clone() Event {
	e.Values = maps.Clone(e.Values)
	return e
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s t=%.1fs", e.Kind, e.Time)
	if e.Kind == StateChange {
		fmt.Fprintf(&b, " %s->%s", e.From, e.To)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Values)) {
		fmt.Fprintf(&b, " %s=%.4g", k, e.Values[k])
	}
	return b.String()
}
