package chart

import (
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/compsim/internal/boundary"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/units"
)

// MolarMassSource supplies the molar mass (kg/mol) of the gas being
// compressed. fluid.State satisfies it.
type MolarMassSource interface {
	MolarMass() float64
}

type mwMap struct {
	mw float64
	m  *FanLaw
}

// MWInterpolated holds one FanLaw map per molecular weight and blends the
// two maps bracketing the operating MW. The embedded FanLaw is the base map
// (the first one added) and answers whenever blending is not possible.
type MWInterpolated struct {
	*FanLaw

	maps               []mwMap // ascending MW
	operatingMW        float64
	interpolate        bool
	useActualMW        bool
	allowExtrapolation bool
	autoGenerate       bool
	fluid              MolarMassSource
}

// NewMWInterpolated returns an empty composite with interpolation and
// boundary auto-generation enabled.
func NewMWInterpolated() *MWInterpolated {
	return &MWInterpolated{
		FanLaw:       NewFanLaw(),
		operatingMW:  math.NaN(),
		interpolate:  true,
		autoGenerate: true,
	}
}

// AddMapAtMW builds a FanLaw map for molecular weight mw (g/mol) and
// inserts it in MW order, replacing a map at the same MW. effFlow may be
// nil. The first map added becomes the base map.
func (m *MWInterpolated) AddMapAtMW(mw float64, conditions, speeds []float64, flow, head, effFlow, efficiency [][]float64) error {
	if !(mw > 0) || math.IsInf(mw, 0) {
		return curve.NewConfigError("chart.AddMapAtMW", "mw", "must be positive, got %g", mw)
	}
	fl := NewFanLaw()
	fl.headUnit = m.headUnit
	if err := fl.SetCurvesWithEffFlow(conditions, speeds, flow, head, effFlow, efficiency); err != nil {
		return err
	}
	if m.autoGenerate {
		if err := fl.GenerateSurgeCurve(); err != nil {
			return err
		}
		if err := fl.GenerateStoneWallCurve(); err != nil {
			return err
		}
	}

	if len(m.maps) == 0 {
		// Boundaries set on the empty composite belong to the first map.
		fl.inherit(m.FanLaw)
		if m.FanLaw.surge.Len() > 0 {
			fl.surge = m.FanLaw.surge
		}
		if m.FanLaw.stonewall.Len() > 0 {
			fl.stonewall = m.FanLaw.stonewall
		}
		m.FanLaw = fl
	}
	i, found := slices.BinarySearchFunc(m.maps, mw, func(e mwMap, t float64) int {
		switch {
		case e.mw < t:
			return -1
		case e.mw > t:
			return 1
		}
		return 0
	})
	if found {
		if m.maps[i].m == m.FanLaw {
			fl.inherit(m.FanLaw)
			m.FanLaw = fl
		}
		m.maps[i].m = fl
	} else {
		m.maps = slices.Insert(m.maps, i, mwMap{mw: mw, m: fl})
	}
	slog.Debug("chart map added", "mw", mw, "maps", len(m.maps))
	return nil
}

// inherit carries the composite-level settings of the base map being
// replaced.
func (fl *FanLaw) inherit(prev *FanLaw) {
	fl.useRealKappa = prev.useRealKappa
	fl.ref = prev.ref
}

// SetOperatingMW fixes the molecular weight (g/mol) used for blending.
func (m *MWInterpolated) SetOperatingMW(mw float64) { m.operatingMW = mw }

// OperatingMW returns the MW used by the next query.
func (m *MWInterpolated) OperatingMW() float64 {
	m.refreshMW()
	return m.operatingMW
}

// SetFluid attaches the gas whose molar mass drives blending when
// UseActualMW is set.
func (m *MWInterpolated) SetFluid(src MolarMassSource) { m.fluid = src }

func (m *MWInterpolated) SetUseActualMW(use bool)        { m.useActualMW = use }
func (m *MWInterpolated) UseActualMW() bool               { return m.useActualMW }
func (m *MWInterpolated) SetInterpolationEnabled(on bool) { m.interpolate = on }
func (m *MWInterpolated) SetAllowExtrapolation(on bool)   { m.allowExtrapolation = on }
func (m *MWInterpolated) SetAutoGenerateCurves(on bool)   { m.autoGenerate = on }

// MolecularWeights lists the member map MWs in ascending order.
func (m *MWInterpolated) MolecularWeights() []float64 {
	out := make([]float64, len(m.maps))
	for i, e := range m.maps {
		out[i] = e.mw
	}
	return out
}

// NumMaps returns the number of member maps.
func (m *MWInterpolated) NumMaps() int { return len(m.maps) }

// MapAtMW returns the member map stored at exactly mw.
func (m *MWInterpolated) MapAtMW(mw float64) (*FanLaw, bool) {
	for _, e := range m.maps {
		if e.mw == mw {
			return e.m, true
		}
	}
	return nil, false
}

// SetSurgeCurveAtMW replaces the surge line of the member map at mw.
func (m *MWInterpolated) SetSurgeCurveAtMW(mw float64, flow, head []float64) error {
	return m.setBoundaryAtMW(mw, boundary.Surge, flow, head)
}

// SetStoneWallCurveAtMW replaces the stonewall line of the member map at mw.
func (m *MWInterpolated) SetStoneWallCurveAtMW(mw float64, flow, head []float64) error {
	return m.setBoundaryAtMW(mw, boundary.StoneWall, flow, head)
}

func (m *MWInterpolated) setBoundaryAtMW(mw float64, role boundary.Role, flow, head []float64) error {
	fl, ok := m.MapAtMW(mw)
	if !ok {
		return curve.NewConfigError("chart.SetBoundaryCurveAtMW", role.String(), "no map at MW %g", mw)
	}
	c, err := boundary.New(role, flow, head)
	if err != nil {
		return err
	}
	if role == boundary.Surge {
		fl.SetSurgeCurve(c)
	} else {
		fl.SetStoneWallCurve(c)
	}
	return nil
}

// GenerateAllSurgeCurves regenerates the surge line of every member map.
func (m *MWInterpolated) GenerateAllSurgeCurves() error {
	return m.eachMap(func(fl *FanLaw) error { return fl.GenerateSurgeCurve() })
}

// GenerateAllStoneWallCurves regenerates the stonewall line of every member map.
func (m *MWInterpolated) GenerateAllStoneWallCurves() error {
	return m.eachMap(func(fl *FanLaw) error { return fl.GenerateStoneWallCurve() })
}

func (m *MWInterpolated) eachMap(fn func(*FanLaw) error) error {
	if len(m.maps) == 0 {
		return fn(m.FanLaw)
	}
	for _, e := range m.maps {
		if err := fn(e.m); err != nil {
			return err
		}
	}
	return nil
}

func (m *MWInterpolated) GenerateSurgeCurve() error     { return m.GenerateAllSurgeCurves() }
func (m *MWInterpolated) GenerateStoneWallCurve() error { return m.GenerateAllStoneWallCurves() }

// SetHeadUnit applies the unit to the base and every member map.
func (m *MWInterpolated) SetHeadUnit(unit string) error {
	u, err := ParseHeadUnit(unit)
	if err != nil {
		return err
	}
	m.FanLaw.headUnit = u
	for _, e := range m.maps {
		e.m.headUnit = u
	}
	return nil
}

func (m *MWInterpolated) refreshMW() {
	if !m.useActualMW || m.fluid == nil {
		return
	}
	mw := m.fluid.MolarMass() * 1000
	if mw > 0 && !math.IsInf(mw, 0) {
		m.operatingMW = mw
	}
}

// selection reports the maps to blend and the fraction toward hi. ok is
// false when the base map should answer alone.
func (m *MWInterpolated) selection() (lo, hi *FanLaw, frac float64, ok bool) {
	m.refreshMW()
	mw := m.operatingMW
	n := len(m.maps)
	if !m.interpolate || n < 2 || math.IsNaN(mw) {
		return nil, nil, 0, false
	}

	first, last := m.maps[0], m.maps[n-1]
	switch {
	case mw <= first.mw:
		if !m.allowExtrapolation || mw == first.mw {
			return first.m, first.m, 0, true
		}
		second := m.maps[1]
		return first.m, second.m, (mw - first.mw) / (second.mw - first.mw), true
	case mw >= last.mw:
		if !m.allowExtrapolation || mw == last.mw {
			return last.m, last.m, 0, true
		}
		prev := m.maps[n-2]
		return prev.m, last.m, (mw - prev.mw) / (last.mw - prev.mw), true
	}

	for i := 0; i < n-1; i++ {
		a, b := m.maps[i], m.maps[i+1]
		if mw >= a.mw && mw < b.mw {
			return a.m, b.m, (mw - a.mw) / (b.mw - a.mw), true
		}
	}
	return nil, nil, 0, false
}

// blend evaluates fn on the selected maps, or on the base map.
func (m *MWInterpolated) blend(fn func(*FanLaw) float64) float64 {
	lo, hi, frac, ok := m.selection()
	if !ok {
		return fn(m.FanLaw)
	}
	if lo == hi {
		return fn(lo)
	}
	return units.Lerp(fn(lo), fn(hi), frac)
}

func (m *MWInterpolated) head(flow, speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.head(flow, speed) })
}

func (m *MWInterpolated) efficiency(flow, speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.efficiency(flow, speed) })
}

func (m *MWInterpolated) PolytropicHead(flow, speed float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return m.head(flow, speed), nil
}

func (m *MWInterpolated) PolytropicEfficiency(flow, speed float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return m.efficiency(flow, speed), nil
}

func (m *MWInterpolated) Speed(flow, head float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return invertSpeed(m, m.FanLaw, flow, head, true).Value, nil
}

func (m *MWInterpolated) SpeedWithin(flow, head float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return invertSpeed(m, m.FanLaw, flow, head, false).Value, nil
}

// LegacySpeed is the undamped speed iteration on the blended head.
//
// Deprecated: use Speed.
func (m *MWInterpolated) LegacySpeed(flow, head float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return legacySpeed(m, m.FanLaw, flow, head)
}

func (m *MWInterpolated) Flow(head, speed, guess float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return invertFlow(m, head, speed, guess, false), nil
}

func (m *MWInterpolated) FlowForGasHead(head, speed, guess float64) (float64, error) {
	if m.FanLaw.empty() {
		return 0, ErrNoCurves
	}
	return invertFlow(m, head, speed, guess, true), nil
}

func (m *MWInterpolated) SurgeFlowAtSpeed(speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.SurgeFlowAtSpeed(speed) })
}

func (m *MWInterpolated) SurgeHeadAtSpeed(speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.SurgeHeadAtSpeed(speed) })
}

func (m *MWInterpolated) StoneWallFlowAtSpeed(speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.StoneWallFlowAtSpeed(speed) })
}

func (m *MWInterpolated) StoneWallHeadAtSpeed(speed float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.StoneWallHeadAtSpeed(speed) })
}

func (m *MWInterpolated) SurgeFlow(head float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.SurgeFlow(head) })
}

func (m *MWInterpolated) StoneWallFlow(head float64) float64 {
	return m.blend(func(fl *FanLaw) float64 { return fl.StoneWallFlow(head) })
}

// limitsActive reports whether the blended maps all carry an active line
// of the given role.
func (m *MWInterpolated) limitsActive(role boundary.Role) bool {
	lo, hi, _, ok := m.selection()
	if !ok {
		return false
	}
	line := func(fl *FanLaw) *boundary.Curve {
		if role == boundary.Surge {
			return fl.surge
		}
		return fl.stonewall
	}
	return line(lo).Active() && line(hi).Active()
}

// IsSurge compares flow with the blended surge flow at head.
func (m *MWInterpolated) IsSurge(head, flow float64) bool {
	if !m.limitsActive(boundary.Surge) {
		return m.FanLaw.IsSurge(head, flow)
	}
	return flow < m.SurgeFlow(head)
}

// IsStoneWall compares flow with the blended stonewall flow at head.
func (m *MWInterpolated) IsStoneWall(head, flow float64) bool {
	if !m.limitsActive(boundary.StoneWall) {
		return m.FanLaw.IsStoneWall(head, flow)
	}
	return flow > m.StoneWallFlow(head)
}

func (m *MWInterpolated) DistanceToSurge(head, flow float64) float64 {
	if !m.limitsActive(boundary.Surge) {
		return m.FanLaw.DistanceToSurge(head, flow)
	}
	limit := m.SurgeFlow(head)
	if limit <= 0 {
		return math.NaN()
	}
	return flow/limit - 1
}

func (m *MWInterpolated) DistanceToStoneWall(head, flow float64) float64 {
	if !m.limitsActive(boundary.StoneWall) {
		return m.FanLaw.DistanceToStoneWall(head, flow)
	}
	if flow <= 0 {
		return math.NaN()
	}
	return m.StoneWallFlow(head)/flow - 1
}
