// Package chart implements compressor performance maps: a family of speed
// lines answering head and efficiency at (flow, speed), their inversion for
// speed or flow, and the surge and stonewall lines that bound them.
//
// Three implementations share the Map interface:
//
//	FanLaw          one quadratic in reduced variables for the whole map
//	Lookup          per-speed splines with bracketing-speed averaging
//	MWInterpolated  several FanLaw maps blended by molecular weight
package chart

import (
	"errors"

	"github.com/talgya/compsim/internal/boundary"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/units"
)

// ErrNoCurves is returned by queries on a map with no speed lines.
var ErrNoCurves = errors.New("chart: no speed curves defined")

// HeadUnit labels the head values stored in a map.
type HeadUnit string

const (
	HeadMeter   HeadUnit = "meter" // length-equivalent head
	HeadKJPerKg HeadUnit = "kJ/kg" // fluid-specific energy
)

// ParseHeadUnit accepts "meter" and "kJ/kg".
func ParseHeadUnit(s string) (HeadUnit, error) {
	switch HeadUnit(s) {
	case HeadMeter, HeadKJPerKg:
		return HeadUnit(s), nil
	}
	return "", curve.NewConfigError("chart.SetHeadUnit", "headUnit", "does not support value %q", s)
}

// FromKJPerKg converts a specific-energy head into this unit.
func (u HeadUnit) FromKJPerKg(v float64) float64 {
	if u == HeadMeter {
		return units.HeadKJPerKgToMeters(v)
	}
	return v
}

// ToKJPerKg converts a head in this unit to specific energy.
func (u HeadUnit) ToKJPerKg(v float64) float64 {
	if u == HeadMeter {
		return units.HeadMetersToKJPerKg(v)
	}
	return v
}

// Reference holds the gas conditions a map was measured at.
type Reference struct {
	MolecularWeight float64 `json:"molecular_weight"` // g/mol
	Temperature     float64 `json:"temperature"`      // K
	Pressure        float64 `json:"pressure"`         // bara
	Z               float64 `json:"z"`
}

// Map is the capability shared by every compressor map. Flows are actual
// volumetric inlet flows (m3/hr), speeds in RPM, heads in HeadUnit and
// efficiencies in percent.
type Map interface {
	SetCurves(conditions, speeds []float64, flow, head, efficiency [][]float64) error
	SetCurvesWithEffFlow(conditions, speeds []float64, flow, head, effFlow, efficiency [][]float64) error
	AddCurve(c curve.Curve) error
	Curves() []curve.Curve
	Conditions() []float64

	PolytropicHead(flow, speed float64) (float64, error)
	PolytropicEfficiency(flow, speed float64) (float64, error)
	Speed(flow, head float64) (float64, error)
	SpeedWithin(flow, head float64) (float64, error)
	Flow(head, speed, guess float64) (float64, error)
	FlowForGasHead(head, speed, guess float64) (float64, error)

	GenerateSurgeCurve() error
	GenerateStoneWallCurve() error
	SurgeCurve() *boundary.Curve
	StoneWallCurve() *boundary.Curve
	SetSurgeCurve(c *boundary.Curve)
	SetStoneWallCurve(c *boundary.Curve)

	SurgeFlowAtSpeed(speed float64) float64
	SurgeHeadAtSpeed(speed float64) float64
	StoneWallFlowAtSpeed(speed float64) float64
	StoneWallHeadAtSpeed(speed float64) float64
	SurgeFlow(head float64) float64
	StoneWallFlow(head float64) float64
	IsSurge(head, flow float64) bool
	IsStoneWall(head, flow float64) bool
	DistanceToSurge(head, flow float64) float64
	DistanceToStoneWall(head, flow float64) float64

	MinSpeed() float64
	MaxSpeed() float64
	ReferenceSpeed() float64

	HeadUnit() HeadUnit
	SetHeadUnit(unit string) error
	UseRealKappa() bool
	SetUseRealKappa(use bool)
	ReferenceConditions() Reference
	SetReferenceConditions(ref Reference)
}
