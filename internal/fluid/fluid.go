// Package fluid is the narrow window the compressor core has onto the gas
// it compresses. The core only reads properties through State; the host
// supplies an implementation. IdealGas is a reference implementation with
// no flash calculations.
package fluid

import (
	"fmt"

	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/units"
)

// State is a read-only view of a flowing gas.
type State interface {
	Pressure() float64        // bara
	Temperature() float64     // K
	Density() float64         // kg/m3
	MolarMass() float64       // kg/mol
	Compressibility() float64 // Z
	Kappa() float64           // real-gas heat capacity ratio
	IdealKappa() float64      // ideal-gas heat capacity ratio
	MassFlow() float64        // kg/s
	VolumetricFlow() float64  // actual m3/hr
}

// IdealGas is a gas with constant compressibility. Values are copied on
// every With* call so a State handed out is never mutated.
type IdealGas struct {
	MolarMassKg float64 `json:"molar_mass"`  // kg/mol
	PressureBar float64 `json:"pressure"`    // bara
	TempK       float64 `json:"temperature"` // K
	Z           float64 `json:"z"`
	KappaIdeal  float64 `json:"kappa_ideal"`
	KappaReal   float64 `json:"kappa_real"` // 0 means same as KappaIdeal
	MassFlowKgS float64 `json:"mass_flow"`  // kg/s
}

// NewIdealGas validates and returns a gas at the given conditions.
func NewIdealGas(molarMassKg, pressureBar, tempK, z, kappa float64) (IdealGas, error) {
	g := IdealGas{
		MolarMassKg: molarMassKg,
		PressureBar: pressureBar,
		TempK:       tempK,
		Z:           z,
		KappaIdeal:  kappa,
	}
	if err := g.Validate(); err != nil {
		return IdealGas{}, err
	}
	return g, nil
}

// Validate rejects non-physical properties.
func (g IdealGas) Validate() error {
	const op = "fluid.Validate"
	switch {
	case !(g.MolarMassKg > 0):
		return curve.NewConfigError(op, "molar_mass", "must be positive, got %g", g.MolarMassKg)
	case !(g.PressureBar > 0):
		return curve.NewConfigError(op, "pressure", "must be positive, got %g", g.PressureBar)
	case !(g.TempK > 0):
		return curve.NewConfigError(op, "temperature", "must be positive, got %g", g.TempK)
	case !(g.Z > 0):
		return curve.NewConfigError(op, "z", "must be positive, got %g", g.Z)
	case !(g.KappaIdeal > 1):
		return curve.NewConfigError(op, "kappa", "must exceed 1, got %g", g.KappaIdeal)
	}
	return nil
}

func (g IdealGas) Pressure() float64        { return g.PressureBar }
func (g IdealGas) Temperature() float64     { return g.TempK }
func (g IdealGas) MolarMass() float64       { return g.MolarMassKg }
func (g IdealGas) Compressibility() float64 { return g.Z }
func (g IdealGas) IdealKappa() float64      { return g.KappaIdeal }
func (g IdealGas) MassFlow() float64        { return g.MassFlowKgS }

func (g IdealGas) Kappa() float64 {
	if g.KappaReal > 0 {
		return g.KappaReal
	}
	return g.KappaIdeal
}

// Density is P·M/(Z·R·T).
func (g IdealGas) Density() float64 {
	return g.PressureBar * 1e5 * g.MolarMassKg / (g.Z * units.GasConstant * g.TempK)
}

// VolumetricFlow returns the actual volumetric flow in m3/hr.
func (g IdealGas) VolumetricFlow() float64 {
	rho := g.Density()
	if rho <= 0 {
		return 0
	}
	return g.MassFlowKgS / rho * units.SecondsPerHour
}

// WithMassFlow returns a copy flowing at m kg/s.
func (g IdealGas) WithMassFlow(m float64) IdealGas {
	g.MassFlowKgS = m
	return g
}

// WithVolumetricFlow returns a copy flowing at q actual m3/hr.
func (g IdealGas) WithVolumetricFlow(q float64) IdealGas {
	g.MassFlowKgS = q / units.SecondsPerHour * g.Density()
	return g
}

// WithConditions returns a copy at a new pressure and temperature, keeping
// the mass flow.
func (g IdealGas) WithConditions(pressureBar, tempK float64) IdealGas {
	g.PressureBar = pressureBar
	g.TempK = tempK
	return g
}

func (g IdealGas) String() string {
	return fmt.Sprintf("%.2f bara %.1f K MW %.2f", g.PressureBar, g.TempK, g.MolarMassKg*1000)
}
