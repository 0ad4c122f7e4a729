package compressor

import (
	"math"
	"strings"

	"github.com/talgya/compsim/internal/curve"
)

// StartupProfile ramps the machine to idle, holds it there, then ramps to
// the requested speed.
type StartupProfile struct {
	IdleSpeed            float64 `json:"idle_speed"` // RPM
	IdleHold             float64 `json:"idle_hold"`  // s
	RampRate             float64 `json:"ramp_rate"`  // RPM/s
	RequireAntisurgeOpen bool    `json:"require_antisurge_open"`
}

// DefaultStartupProfile idles at 1000 RPM for 30 s and ramps at 100 RPM/s
// with the anti-surge valve open.
func DefaultStartupProfile() StartupProfile {
	return StartupProfile{IdleSpeed: 1000, IdleHold: 30, RampRate: 100, RequireAntisurgeOpen: true}
}

func (p StartupProfile) rate() float64 {
	if p.RampRate > 0 {
		return p.RampRate
	}
	return DefaultStartupProfile().RampRate
}

// TargetAt returns the profile speed elapsed seconds after the start.
func (p StartupProfile) TargetAt(elapsed, final float64) float64 {
	r := p.rate()
	idle := math.Min(math.Max(p.IdleSpeed, 0), final)
	toIdle := idle / r
	switch {
	case elapsed < toIdle:
		return r * elapsed
	case elapsed < toIdle+p.IdleHold:
		return idle
	}
	return math.Min(final, idle+r*(elapsed-toIdle-p.IdleHold))
}

// Complete reports whether the start has finished: the idle hold is over
// and speed is within tol of final.
func (p StartupProfile) Complete(elapsed, speed, final, tol float64) bool {
	idle := math.Min(math.Max(p.IdleSpeed, 0), final)
	if elapsed < idle/p.rate()+p.IdleHold {
		return false
	}
	return math.Abs(speed-final) < tol
}

// ShutdownType selects the run-down rate.
type ShutdownType int

const (
	NormalShutdown ShutdownType = iota
	RapidShutdown
	EmergencyShutdown
	Coastdown
)

var shutdownNames = [...]string{
	NormalShutdown:    "normal",
	RapidShutdown:     "rapid",
	EmergencyShutdown: "emergency",
	Coastdown:         "coastdown",
}

// default run-down rates in RPM/s, by type.
var shutdownRates = [...]float64{
	NormalShutdown:    100,
	RapidShutdown:     300,
	EmergencyShutdown: 1000,
	Coastdown:         30,
}

func (t ShutdownType) String() string {
	if t >= 0 && int(t) < len(shutdownNames) {
		return shutdownNames[t]
	}
	return "unknown"
}

// ParseShutdownType accepts the names produced by ShutdownType.String.
func ParseShutdownType(s string) (ShutdownType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range shutdownNames {
		if name == s {
			return ShutdownType(i), nil
		}
	}
	return 0, curve.NewConfigError("compressor.ParseShutdownType", "type", "unknown shutdown type %q", s)
}

// ShutdownProfile runs the machine down from the speed at which the stop
// began.
type ShutdownProfile struct {
	Type               ShutdownType `json:"type"`
	RampRate           float64      `json:"ramp_rate"`            // RPM/s, 0 uses the type default
	AntisurgeOpenDelay float64      `json:"antisurge_open_delay"` // s after stop
	Depressurize       bool         `json:"depressurize"`
}

// Rate returns the run-down rate in RPM/s.
func (p ShutdownProfile) Rate() float64 {
	if p.RampRate > 0 {
		return p.RampRate
	}
	if p.Type >= 0 && int(p.Type) < len(shutdownRates) {
		return shutdownRates[p.Type]
	}
	return shutdownRates[NormalShutdown]
}

// TargetAt returns the profile speed elapsed seconds into the run-down.
func (p ShutdownProfile) TargetAt(elapsed, start float64) float64 {
	return math.Max(0, start-p.Rate()*elapsed)
}

// OpenAntisurge reports whether the recycle valve should be open.
func (p ShutdownProfile) OpenAntisurge(elapsed float64) bool {
	return elapsed >= p.AntisurgeOpenDelay
}

// stoppedSpeed is the speed below which a run-down counts as complete.
const stoppedSpeed = 10.0

// Complete reports whether the machine has run down.
func (p ShutdownProfile) Complete(speed float64) bool {
	return speed < stoppedSpeed
}
