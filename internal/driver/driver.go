// Package driver models the machine turning the compressor shaft: how much
// power it can deliver at a speed, how fast it can change speed given the
// power margin and rotor inertia, and when a sustained overload trips it.
package driver

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"

	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/units"
)

// Type is the kind of prime mover.
type Type int

const (
	ElectricMotor Type = iota
	VFDMotor
	GasTurbine
	SteamTurbine
	ReciprocatingEngine
	Expander
)

var typeNames = map[Type]string{
	ElectricMotor:       "electric_motor",
	VFDMotor:            "vfd_motor",
	GasTurbine:          "gas_turbine",
	SteamTurbine:        "steam_turbine",
	ReciprocatingEngine: "reciprocating_engine",
	Expander:            "expander",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseType accepts the names produced by Type.String, case-insensitively.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, curve.NewConfigError("driver.ParseType", "type", "unknown driver type %q", s)
}

// defaults per type: efficiency, accel and decel (RPM/s).
var typeDefaults = map[Type]struct{ eff, accel, decel float64 }{
	ElectricMotor:       {0.95, 200, 200},
	VFDMotor:            {0.97, 100, 100},
	GasTurbine:          {0.35, 50, 50},
	SteamTurbine:        {0.80, 30, 30},
	ReciprocatingEngine: {0.40, 100, 100},
	Expander:            {0.85, 100, 100},
}

// Driver is the power and speed envelope of a prime mover. Powers are in
// kW, speeds in RPM.
type Driver struct {
	Type       Type    `json:"type"`
	RatedPower float64 `json:"rated_power"` // kW
	MaxPower   float64 `json:"max_power"`   // kW, used when no curve applies
	RatedSpeed float64 `json:"rated_speed"` // 0 if unknown
	MinSpeed   float64 `json:"min_speed"`
	MaxSpeed   float64 `json:"max_speed"`  // 0 means unbounded
	Inertia    float64 `json:"inertia"`    // kg·m², driver plus compressor rotor
	MaxAccel   float64 `json:"max_accel"`  // RPM/s
	MaxDecel   float64 `json:"max_decel"`  // RPM/s
	Efficiency float64 `json:"efficiency"` // fraction at rated speed

	AmbientTemp float64 `json:"ambient_temp"` // K
	TempDerate  float64 `json:"temp_derate"`  // fractional power loss per K above ISO, gas turbines only

	OverloadTripDelay float64 `json:"overload_trip_delay"` // s

	table      *interp.PiecewiseLinear
	tableConst float64
	tableLen   int
	powerCurve []float64 // a, b, c in rated·(a + b·r + c·r²)
	effCurve   []float64 // a, b, c in eff·(a + b·r + c·r²), VFD only

	overloadTimer float64
}

// New returns a driver of the given type with typical defaults.
func New(t Type, ratedPowerKW float64) *Driver {
	d, ok := typeDefaults[t]
	if !ok {
		d = typeDefaults[ElectricMotor]
	}
	drv := &Driver{
		Type:              t,
		RatedPower:        ratedPowerKW,
		MaxPower:          ratedPowerKW * 1.1,
		Inertia:           100,
		MaxAccel:          d.accel,
		MaxDecel:          d.decel,
		Efficiency:        d.eff,
		AmbientTemp:       units.ISOTemperature,
		OverloadTripDelay: 10,
	}
	switch t {
	case VFDMotor:
		drv.effCurve = []float64{0.85, 0.3, -0.15}
	case GasTurbine:
		drv.TempDerate = 0.007
	}
	return drv
}

// Validate reports the first inconsistent setting.
func (d *Driver) Validate() error {
	const op = "driver.Validate"
	switch {
	case !(d.RatedPower > 0):
		return curve.NewConfigError(op, "rated_power", "must be positive, got %g", d.RatedPower)
	case !(d.Inertia > 0):
		return curve.NewConfigError(op, "inertia", "must be positive, got %g", d.Inertia)
	case d.MinSpeed < 0:
		return curve.NewConfigError(op, "min_speed", "must not be negative, got %g", d.MinSpeed)
	case d.MaxSpeed > 0 && d.MaxSpeed < d.MinSpeed:
		return curve.NewConfigError(op, "max_speed", "%g is below min speed %g", d.MaxSpeed, d.MinSpeed)
	case !(d.MaxAccel > 0) || !(d.MaxDecel > 0):
		return curve.NewConfigError(op, "max_accel", "acceleration limits must be positive")
	case !(d.Efficiency > 0) || d.Efficiency > 1:
		return curve.NewConfigError(op, "efficiency", "must be in (0, 1], got %g", d.Efficiency)
	}
	return nil
}

// SetPowerTable installs a measured speed→max power table. It takes
// priority over the polynomial curve.
func (d *Driver) SetPowerTable(speeds, powers []float64) error {
	const op = "driver.SetPowerTable"
	if len(speeds) != len(powers) {
		return curve.NewConfigError(op, "powers", "%d speeds but %d powers", len(speeds), len(powers))
	}
	if len(speeds) == 0 {
		d.table, d.tableLen = nil, 0
		return nil
	}
	xs, ys := curve.SortUnique(speeds, powers)
	if len(xs) == 1 {
		d.table, d.tableLen, d.tableConst = nil, 1, ys[0]
		return nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return curve.NewConfigError(op, "speeds", "%v", err)
	}
	d.table, d.tableLen = &pl, len(xs)
	return nil
}

// SetPowerCurve sets max power as rated·(a + b·r + c·r²), r = speed/rated speed.
func (d *Driver) SetPowerCurve(a, b, c float64) { d.powerCurve = []float64{a, b, c} }

// SetEfficiencyCurve sets the VFD part-speed efficiency factor.
func (d *Driver) SetEfficiencyCurve(a, b, c float64) { d.effCurve = []float64{a, b, c} }

// MaxAvailablePowerAtSpeed returns the power ceiling at speed. Priority:
// table, polynomial, MaxPower. Gas turbines lose TempDerate per kelvin of
// ambient above ISO. Never negative.
func (d *Driver) MaxAvailablePowerAtSpeed(speed float64) float64 {
	p := d.MaxPower
	switch {
	case d.tableLen == 1:
		p = d.tableConst
	case d.table != nil:
		p = d.table.Predict(speed) // clamps at the table edges
	case d.powerCurve != nil && d.RatedSpeed > 0:
		p = d.RatedPower * curve.Polynomial(d.powerCurve).At(speed/d.RatedSpeed)
	}
	if d.Type == GasTurbine && d.AmbientTemp > units.ISOTemperature {
		p *= 1 - d.TempDerate*(d.AmbientTemp-units.ISOTemperature)
	}
	return math.Max(p, 0)
}

// MaxAvailablePower is the ceiling at rated speed, or 1.1·rated power when
// no rated speed is known.
func (d *Driver) MaxAvailablePower() float64 {
	if d.RatedSpeed > 0 {
		return d.MaxAvailablePowerAtSpeed(d.RatedSpeed)
	}
	return d.RatedPower * 1.1
}

// EfficiencyAtSpeed returns driver efficiency (fraction). VFD motors fall
// off at part speed.
func (d *Driver) EfficiencyAtSpeed(speed float64) float64 {
	if d.Type != VFDMotor || d.effCurve == nil || d.RatedSpeed <= 0 {
		return d.Efficiency
	}
	f := curve.Polynomial(d.effCurve).At(speed / d.RatedSpeed)
	return units.Clamp(d.Efficiency*f, 0, 1)
}

// SpeedChange integrates speed over dt toward target. Acceleration comes
// from the torque left over after powerKW, limited by MaxAccel; slowing
// down is limited by MaxDecel alone. The result never passes target and
// stays within [MinSpeed, MaxSpeed], except that the lower bound yields to
// a target or current speed below it.
func (d *Driver) SpeedChange(current, target, powerKW, dt float64) float64 {
	diff := target - current
	if diff == 0 || dt <= 0 {
		return current
	}

	var next float64
	if diff > 0 {
		rate := d.MaxAccel
		if omega := current * units.RPMToRadPerSec; omega > 1e-6 {
			torque := (d.MaxAvailablePowerAtSpeed(current) - powerKW) * 1000 / omega // N·m
			rate = units.Clamp(torque/d.Inertia*units.RadPerSecToRPM, 0, d.MaxAccel)
		}
		next = current + math.Min(diff, rate*dt)
	} else {
		next = current - math.Min(-diff, d.MaxDecel*dt)
	}

	lo := math.Min(d.MinSpeed, math.Min(target, current))
	hi := math.Inf(1)
	if d.MaxSpeed > 0 {
		hi = math.Max(d.MaxSpeed, current)
	}
	return units.Clamp(next, math.Max(lo, 0), hi)
}

// CheckOverloadTrip accumulates time spent above MaxAvailablePower and
// reports true once it exceeds OverloadTripDelay. Dropping back under the
// limit resets the timer.
func (d *Driver) CheckOverloadTrip(powerKW, dt float64) bool {
	if powerKW <= d.MaxAvailablePower() {
		d.overloadTimer = 0
		return false
	}
	d.overloadTimer += dt
	return d.overloadTimer > d.OverloadTripDelay
}

// OverloadTime returns the accumulated overload time in seconds.
func (d *Driver) OverloadTime() float64 { return d.overloadTimer }

// ResetOverloadTimer clears the accumulated overload time.
func (d *Driver) ResetOverloadTimer() { d.overloadTimer = 0 }
