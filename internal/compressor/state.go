package compressor

import (
	"errors"
	"fmt"
)

// State is the operating state of the machine.
type State int

const (
	Stopped State = iota
	Starting
	Running
	SurgeProtection
	SpeedLimited
	Shutdown
	Depressurizing
	Tripped
	Standby
)

var stateNames = [...]string{
	Stopped:         "STOPPED",
	Starting:        "STARTING",
	Running:         "RUNNING",
	SurgeProtection: "SURGE_PROTECTION",
	SpeedLimited:    "SPEED_LIMITED",
	Shutdown:        "SHUTDOWN",
	Depressurizing:  "DEPRESSURIZING",
	Tripped:         "TRIPPED",
	Standby:         "STANDBY",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("compressor: unknown state %q", name)
}

// IsOperational reports whether the shaft is being driven under control.
func (s State) IsOperational() bool {
	switch s {
	case Running, SurgeProtection, SpeedLimited, Starting:
		return true
	}
	return false
}

// CanStart reports whether Start is accepted from this state.
func (s State) CanStart() bool {
	return s == Stopped || s == Standby
}

// ErrInvalidTransition is returned by triggers not accepted in the
// current state.
var ErrInvalidTransition = errors.New("compressor: invalid state transition")

// TransitionError describes a refused trigger.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("compressor: cannot %s from %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
