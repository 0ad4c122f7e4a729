package fluid

import (
	"math"

	"github.com/talgya/compsim/internal/units"
)

// Discharge is the outlet state reached by a polytropic compression.
type Discharge struct {
	Pressure    float64 // bara
	Temperature float64 // K
	Ratio       float64 // outlet/inlet pressure
}

// polytropicExponentTerm returns (n−1)/n for a compression with polytropic
// efficiency eff (fraction).
func polytropicExponentTerm(kappa, eff float64) float64 {
	return (kappa - 1) / (kappa * eff)
}

func kappaOf(in State, realKappa bool) float64 {
	if realKappa {
		return in.Kappa()
	}
	return in.IdealKappa()
}

// Compress returns the discharge reached when in receives headKJ kJ/kg of
// polytropic head at polytropic efficiency eff (fraction). Non-positive
// head or efficiency returns the inlet conditions.
func Compress(in State, headKJ, eff float64, realKappa bool) Discharge {
	d := Discharge{Pressure: in.Pressure(), Temperature: in.Temperature(), Ratio: 1}
	if headKJ <= 0 || eff <= 0 {
		return d
	}
	m := polytropicExponentTerm(kappaOf(in, realKappa), eff)
	zrt := in.Compressibility() * units.GasConstant * in.Temperature() / in.MolarMass() // J/kg
	ratio := math.Pow(1+headKJ*1000*m/zrt, 1/m)
	d.Ratio = ratio
	d.Pressure = in.Pressure() * ratio
	d.Temperature = in.Temperature() * math.Pow(ratio, m)
	return d
}

// PolytropicHead returns the head in kJ/kg needed to raise in to the
// pressure ratio at polytropic efficiency eff. It inverts Compress.
func PolytropicHead(in State, ratio, eff float64, realKappa bool) float64 {
	if ratio <= 1 || eff <= 0 {
		return 0
	}
	m := polytropicExponentTerm(kappaOf(in, realKappa), eff)
	zrt := in.Compressibility() * units.GasConstant * in.Temperature() / in.MolarMass()
	return zrt / m * (math.Pow(ratio, m) - 1) / 1000
}

// ShaftPower returns the gas power in kW for a mass flow in kg/s receiving
// headKJ kJ/kg at polytropic efficiency eff.
func ShaftPower(massFlow, headKJ, eff float64) float64 {
	if eff <= 0 {
		return 0
	}
	return massFlow * headKJ / eff
}
