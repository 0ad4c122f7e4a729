package chart

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/compsim/internal/boundary"
	"github.com/talgya/compsim/internal/curve"
)

func TestEmptyMapsReportNoCurves(t *testing.T) {
	maps := map[string]Map{
		"fanlaw": NewFanLaw(),
		"lookup": NewLookup(),
		"mw":     NewMWInterpolated(),
	}
	for name, m := range maps {
		t.Run(name, func(t *testing.T) {
			_, err := m.PolytropicHead(1000, 1000)
			assert.ErrorIs(t, err, ErrNoCurves)
			_, err = m.PolytropicEfficiency(1000, 1000)
			assert.ErrorIs(t, err, ErrNoCurves)
			_, err = m.Speed(1000, 50)
			assert.ErrorIs(t, err, ErrNoCurves)
			_, err = m.SpeedWithin(1000, 50)
			assert.ErrorIs(t, err, ErrNoCurves)
			_, err = m.Flow(50, 1000, 0)
			assert.ErrorIs(t, err, ErrNoCurves)
			_, err = m.FlowForGasHead(50, 1000, 0)
			assert.ErrorIs(t, err, ErrNoCurves)
			assert.ErrorIs(t, m.GenerateSurgeCurve(), ErrNoCurves)

			assert.True(t, math.IsNaN(m.SurgeFlowAtSpeed(1000)))
			assert.True(t, math.IsNaN(m.StoneWallHeadAtSpeed(1000)))
			assert.Zero(t, m.MinSpeed())
			assert.Zero(t, m.MaxSpeed())
			assert.False(t, m.IsSurge(50, 10))
			assert.Equal(t, HeadMeter, m.HeadUnit())
		})
	}
}

func TestSetCurvesRejectsBadInput(t *testing.T) {
	m := sampleFanLaw(t)
	before := m.HeadFit()

	err := m.SetCurves(nil, nil, nil, nil, nil)
	assert.True(t, errors.Is(err, curve.ErrConfig))

	err = m.SetCurves(nil, []float64{1000}, [][]float64{{1, 2, 3}}, [][]float64{{1, 2}}, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, curve.ErrConfig)

	err = m.SetCurvesWithEffFlow(nil, []float64{1000}, [][]float64{{1, 2}}, [][]float64{{1, 2}},
		[][]float64{{1, 2, 3}}, [][]float64{{70, 80}})
	assert.ErrorIs(t, err, curve.ErrConfig)

	assert.Len(t, m.Curves(), 8)
	assert.Equal(t, before, m.HeadFit())
	assert.Equal(t, 8200.0, m.MinSpeed())
}

func TestSpeedRangeAndLastWriteWins(t *testing.T) {
	m := sampleFanLaw(t)
	assert.Equal(t, 8200.0, m.MinSpeed())
	assert.Equal(t, 12913.0, m.MaxSpeed())
	assert.InDelta(t, 10556.5, m.ReferenceSpeed(), 1e-9)

	curves := m.Curves()
	for i := 1; i < len(curves); i++ {
		assert.Less(t, curves[i-1].Speed, curves[i].Speed)
	}

	c, err := curve.New(8200, []float64{1600, 3400}, []float64{30, 15}, nil, []float64{75, 60})
	require.NoError(t, err)
	require.NoError(t, m.AddCurve(c))
	got := m.Curves()
	require.Len(t, got, 8)
	assert.Equal(t, []float64{1600, 3400}, got[0].Flow)

	c.Speed = 14000
	require.NoError(t, m.AddCurve(c))
	assert.Equal(t, 14000.0, m.MaxSpeed())
	assert.InDelta(t, 11100, m.ReferenceSpeed(), 1e-9)
}

func TestFanLawFit(t *testing.T) {
	m := sampleFanLaw(t)
	fit := m.HeadFit()
	require.Len(t, fit, 3)
	assert.InDelta(t, 2.8365951e-07, fit[0], 1e-12)
	assert.InDelta(t, 1.8755326e-06, fit[1], 1e-11)
	assert.InDelta(t, -4.5715486e-06, fit[2], 1e-11)

	eff := m.EfficiencyFit()
	assert.InDelta(t, 14.057, eff[0], 1e-2)
	assert.InDelta(t, 488.138, eff[1], 1e-2)
	assert.InDelta(t, -881.817, eff[2], 1e-2)
}

func TestFanLawHeadRisesWithSpeed(t *testing.T) {
	m := sampleFanLaw(t)
	for _, q := range []float64{2800, 3000, 3500} {
		prev := math.Inf(-1)
		for s := 8200.0; s <= 12913; s += 500 {
			h, err := m.PolytropicHead(q, s)
			require.NoError(t, err)
			assert.Greater(t, h, prev, "flow %g speed %g", q, s)
			prev = h
		}
	}
}

func TestFanLawFlowRoundTrip(t *testing.T) {
	m := sampleFanLaw(t)
	cases := []struct {
		speed float64
		heads []float64
	}{
		{10453, []float64{30, 40, 45, 50}},
		{12913, []float64{45, 60, 70}},
	}
	for _, tc := range cases {
		for _, h := range tc.heads {
			q, err := m.Flow(h, tc.speed, 3000)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, q, 0.0)

			back, err := m.PolytropicHead(q, tc.speed)
			require.NoError(t, err)
			assert.InDelta(t, h, back, 1e-4, "speed %g head %g", tc.speed, h)
		}
	}
}

func TestFanLawFlowNeverNegative(t *testing.T) {
	m := sampleFanLaw(t)
	q, err := m.Flow(500, 8200, 3000)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q, 0.0)

	q, err = m.Flow(-5, 8200, 3000)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, q)
}

func TestFanLawSpeedRoundTrip(t *testing.T) {
	m := sampleFanLaw(t)
	for _, n := range []float64{8000, 9000, 10000, 11000, 12000, 13000, 14000} {
		h, err := m.PolytropicHead(3500, n)
		require.NoError(t, err)

		got, err := m.Speed(3500, h)
		require.NoError(t, err)
		assert.InDelta(t, n, got, 1.0, "speed %g", n)
	}
}

func TestFlowForGasHeadRoundTrip(t *testing.T) {
	m := sampleFanLaw(t)
	for _, g := range []float64{40, 45, 50, 55} {
		q, err := m.FlowForGasHead(g, 10453, 3000)
		require.NoError(t, err)

		h, err := m.PolytropicHead(q, 10453)
		require.NoError(t, err)
		e, err := m.PolytropicEfficiency(q, 10453)
		require.NoError(t, err)
		assert.InDelta(t, g, h/(e/100), 1e-4, "gas head %g", g)
		assert.Less(t, h, g)
	}
}

func TestGeneratedBoundaries(t *testing.T) {
	m := sampleFanLaw(t)
	require.NoError(t, m.GenerateSurgeCurve())
	require.NoError(t, m.GenerateStoneWallCurve())

	require.True(t, m.SurgeCurve().Active())
	assert.Equal(t, 8, m.SurgeCurve().Len())
	flow, _ := m.SurgeCurve().Points()
	assert.Equal(t, 1636.5807, flow[0])
	assert.Equal(t, 2789.1285, flow[len(flow)-1])

	assert.Equal(t, 2789.1285, m.SurgeFlowAtSpeed(12913))
	assert.Equal(t, 80.0375, m.SurgeHeadAtSpeed(12913))
	assert.Equal(t, 3411.2977, m.StoneWallFlowAtSpeed(8200))
	assert.Equal(t, 16.3403, m.StoneWallHeadAtSpeed(8200))
	assert.Equal(t, 2571.1753, m.SurgeFlowAtSpeed(12000))

	assert.InDelta(t, 2789.1285, m.SurgeFlow(80.0375), 1e-6)
	assert.True(t, m.IsSurge(50, 1000))
	assert.False(t, m.IsSurge(50, 3500))
	assert.False(t, m.IsStoneWall(50, 1000))
	assert.True(t, m.IsStoneWall(30, 9000))

	assert.InDelta(t, 0.1, m.DistanceToSurge(80.0375, 2789.1285*1.1), 1e-9)
	assert.InDelta(t, 1.0, m.DistanceToStoneWall(39.728, 5661.0331/2), 1e-9)
}

func TestSetHeadUnit(t *testing.T) {
	m := NewFanLaw()
	require.NoError(t, m.SetHeadUnit("kJ/kg"))
	assert.Equal(t, HeadKJPerKg, m.HeadUnit())

	err := m.SetHeadUnit("ft")
	assert.ErrorIs(t, err, curve.ErrConfig)
	assert.Equal(t, HeadKJPerKg, m.HeadUnit())

	require.NoError(t, m.SetHeadUnit("meter"))
	assert.InDelta(t, 1000/9.80665, HeadMeter.FromKJPerKg(1), 1e-9)
	assert.InDelta(t, 1, HeadMeter.ToKJPerKg(1000/9.80665), 1e-12)
	assert.Equal(t, 5.0, HeadKJPerKg.FromKJPerKg(5))
}

func TestReferenceConditionsAndKappa(t *testing.T) {
	m := NewLookup()
	ref := Reference{MolecularWeight: 19.2, Temperature: 303.15, Pressure: 50, Z: 0.92}
	m.SetReferenceConditions(ref)
	m.SetUseRealKappa(true)
	assert.Equal(t, ref, m.ReferenceConditions())
	assert.True(t, m.UseRealKappa())
}

func simpleLookup(t *testing.T) *Lookup {
	t.Helper()
	m := NewLookup()
	require.NoError(t, m.SetCurves(nil,
		[]float64{2000, 1000, 3000},
		[][]float64{{100, 200, 300}, {100, 200, 300}, {100, 200, 300}},
		[][]float64{{40, 36, 28}, {10, 9, 7}, {90, 81, 63}},
		[][]float64{{70, 80, 75}, {70, 80, 75}, {70, 80, 75}},
	))
	return m
}

func TestLookupBracketing(t *testing.T) {
	m := simpleLookup(t)
	cases := []struct {
		name  string
		flow  float64
		speed float64
		want  float64
	}{
		{"exact", 200, 2000, 36},
		{"between", 200, 1500, 22.5},
		{"below range", 200, 500, 9},
		{"above range", 200, 4000, 81},
		{"knot", 100, 3000, 90},
		{"linear extension", 400, 1000, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := m.PolytropicHead(tc.flow, tc.speed)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, h, 1e-9)
		})
	}

	e, err := m.PolytropicEfficiency(200, 1500)
	require.NoError(t, err)
	assert.InDelta(t, 80, e, 1e-9)
}

func TestLookupTwoSampleLineIsLinear(t *testing.T) {
	m := simpleLookup(t)
	c, err := curve.New(4000, []float64{100, 300}, []float64{160, 120}, nil, []float64{70, 72})
	require.NoError(t, err)
	require.NoError(t, m.AddCurve(c))

	h, err := m.PolytropicHead(200, 4000)
	require.NoError(t, err)
	assert.InDelta(t, 140, h, 1e-9)
	h, err = m.PolytropicHead(400, 4000)
	require.NoError(t, err)
	assert.InDelta(t, 100, h, 1e-9)
}

func TestLookupSpeedTerminatesOnFlatSegments(t *testing.T) {
	m := simpleLookup(t)
	// Averaging makes head constant between 1000 and 2000 RPM.
	n, err := m.Speed(200, 22.5)
	require.NoError(t, err)
	assert.Greater(t, n, 1000.0)
	assert.Less(t, n, 2000.0)
}

func TestLookupGearRatio(t *testing.T) {
	m := NewLookup()
	assert.Equal(t, 1.0, m.GearRatio())
	assert.ErrorIs(t, m.SetGearRatio(0), curve.ErrConfig)
	require.NoError(t, m.SetGearRatio(1.5))
	assert.Equal(t, 1.5, m.GearRatio())
}

type fixedGas float64

func (g fixedGas) MolarMass() float64 { return float64(g) }

func twoMWMap(t *testing.T) *MWInterpolated {
	t.Helper()
	m := NewMWInterpolated()
	speeds := []float64{1000, 2000}
	flow := [][]float64{{100, 200, 300}, {200, 400, 600}}
	// Added heaviest first so the 28 g/mol map is the base map.
	require.NoError(t, m.AddMapAtMW(28, nil, speeds, flow,
		[][]float64{{30, 28.5, 24}, {120, 114, 96}}, nil,
		[][]float64{{60, 70, 65}, {60, 70, 65}}))
	require.NoError(t, m.AddMapAtMW(18, nil, speeds, flow,
		[][]float64{{20, 19, 16}, {80, 76, 64}}, nil,
		[][]float64{{70, 80, 75}, {70, 80, 75}}))
	return m
}

func TestMWInterpolation(t *testing.T) {
	m := twoMWMap(t)
	assert.Equal(t, []float64{18, 28}, m.MolecularWeights())
	assert.Equal(t, 2, m.NumMaps())

	head := func() float64 {
		h, err := m.PolytropicHead(200, 1000)
		require.NoError(t, err)
		return h
	}

	// No operating MW yet: base map answers.
	assert.InDelta(t, 28.5, head(), 1e-6)

	m.SetOperatingMW(23)
	assert.InDelta(t, 23.75, head(), 1e-6)
	e, err := m.PolytropicEfficiency(200, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 75, e, 1e-6)

	m.SetOperatingMW(10)
	assert.InDelta(t, 19, head(), 1e-6)
	m.SetAllowExtrapolation(true)
	assert.InDelta(t, 11.4, head(), 1e-6)

	m.SetAllowExtrapolation(false)
	m.SetOperatingMW(40)
	assert.InDelta(t, 28.5, head(), 1e-6)

	m.SetOperatingMW(18)
	m.SetInterpolationEnabled(false)
	assert.InDelta(t, 28.5, head(), 1e-6)
}

func TestMWUsesFluidMolarMass(t *testing.T) {
	m := twoMWMap(t)
	m.SetFluid(fixedGas(0.023))
	m.SetUseActualMW(true)
	assert.InDelta(t, 23, m.OperatingMW(), 1e-9)

	h, err := m.PolytropicHead(200, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 23.75, h, 1e-6)

	n, err := m.Speed(200, 23.75)
	require.NoError(t, err)
	assert.InDelta(t, 1000, n, 0.5)
}

func TestMWBoundaries(t *testing.T) {
	m := twoMWMap(t)
	m.SetOperatingMW(23)

	assert.InDelta(t, 100, m.SurgeFlowAtSpeed(1000), 1e-9)
	assert.InDelta(t, 25, m.SurgeHeadAtSpeed(1000), 1e-9)
	assert.InDelta(t, 600, m.StoneWallFlowAtSpeed(2000), 1e-9)

	fl18, ok := m.MapAtMW(18)
	require.True(t, ok)
	fl28, ok := m.MapAtMW(28)
	require.True(t, ok)
	limit := (fl18.SurgeFlow(25) + fl28.SurgeFlow(25)) / 2
	assert.InDelta(t, limit, m.SurgeFlow(25), 1e-9)
	assert.True(t, m.IsSurge(25, limit-1))
	assert.False(t, m.IsSurge(25, limit+1))
	assert.InDelta(t, 150/limit-1, m.DistanceToSurge(25, 150), 1e-9)

	err := m.SetSurgeCurveAtMW(99, []float64{1}, []float64{1})
	assert.ErrorIs(t, err, curve.ErrConfig)

	require.NoError(t, m.SetSurgeCurveAtMW(18, []float64{150}, []float64{10}))
	assert.True(t, fl18.SurgeCurve().SinglePoint())
	assert.InDelta(t, (150+fl28.SurgeFlow(25))/2, m.SurgeFlow(25), 1e-9)
}

func TestMWHeadUnitPropagates(t *testing.T) {
	m := twoMWMap(t)
	require.NoError(t, m.SetHeadUnit("kJ/kg"))
	for _, mw := range m.MolecularWeights() {
		fl, ok := m.MapAtMW(mw)
		require.True(t, ok)
		assert.Equal(t, HeadKJPerKg, fl.HeadUnit())
	}
	assert.Equal(t, HeadKJPerKg, m.HeadUnit())
}

func TestAddMapAtMWRejectsBadMW(t *testing.T) {
	m := NewMWInterpolated()
	err := m.AddMapAtMW(0, nil, []float64{1000}, [][]float64{{1}}, [][]float64{{1}}, nil, [][]float64{{1}})
	assert.ErrorIs(t, err, curve.ErrConfig)
	assert.Zero(t, m.NumMaps())
}

func TestLoadLookupFile(t *testing.T) {
	doc := `{
  "name": "test",
  "type": "lookup",
  "head_unit": "kJ/kg",
  "gear_ratio": 2,
  "curves": [
    {"speed": 1000, "flow": [100, 200, 300], "head": [10, 9, 7], "efficiency": [70, 80, 75]},
    {"speed": 2000, "flow": [100, 200, 300], "head": [40, 36, 28], "efficiency": [70, 80, 75]}
  ],
  "surge": {"flow": [100, 200], "head": [10, 40]}
}`
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	lk, ok := m.(*Lookup)
	require.True(t, ok)
	assert.Equal(t, 2.0, lk.GearRatio())
	assert.Equal(t, HeadKJPerKg, lk.HeadUnit())
	assert.Equal(t, 2, lk.SurgeCurve().Len())
	assert.InDelta(t, 150, lk.SurgeFlow(25), 1e-9)
	assert.True(t, lk.StoneWallCurve().Active())
}

func TestLoadMWFile(t *testing.T) {
	doc := `{
  "type": "mw",
  "operating_mw": 23,
  "maps": [
    {"molecular_weight": 18, "curves": [
      {"speed": 1000, "flow": [100, 200, 300], "head": [20, 19, 16], "efficiency": [70, 80, 75]},
      {"speed": 2000, "flow": [200, 400, 600], "head": [80, 76, 64], "efficiency": [70, 80, 75]}]},
    {"molecular_weight": 28, "curves": [
      {"speed": 1000, "flow": [100, 200, 300], "head": [30, 28.5, 24], "efficiency": [60, 70, 65]},
      {"speed": 2000, "flow": [200, 400, 600], "head": [120, 114, 96], "efficiency": [60, 70, 65]}]}
  ]
}`
	m, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	h, err := m.PolytropicHead(200, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 23.75, h, 1e-6)
}

func TestLoadMWFileFollowsFluid(t *testing.T) {
	doc := `{
  "type": "mw",
  "operating_mw": 18,
  "use_actual_mw": true,
  "maps": [
    {"molecular_weight": 18, "curves": [
      {"speed": 1000, "flow": [100, 200, 300], "head": [20, 19, 16], "efficiency": [70, 80, 75]},
      {"speed": 2000, "flow": [200, 400, 600], "head": [80, 76, 64], "efficiency": [70, 80, 75]}]},
    {"molecular_weight": 28, "curves": [
      {"speed": 1000, "flow": [100, 200, 300], "head": [30, 28.5, 24], "efficiency": [60, 70, 65]},
      {"speed": 2000, "flow": [200, 400, 600], "head": [120, 114, 96], "efficiency": [60, 70, 65]}]}
  ]
}`
	m, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	mw, ok := m.(*MWInterpolated)
	require.True(t, ok)
	require.True(t, mw.UseActualMW())

	head := func() float64 {
		h, err := m.PolytropicHead(200, 1000)
		require.NoError(t, err)
		return h
	}
	// No gas attached: the file's operating MW applies.
	assert.InDelta(t, 19, head(), 1e-6)

	mw.SetFluid(fixedGas(0.023))
	assert.InDelta(t, 23.75, head(), 1e-6)
	mw.SetFluid(fixedGas(0.028))
	assert.InDelta(t, 28.5, head(), 1e-6)

	fixed, err := Load(strings.NewReader(strings.Replace(doc, `"use_actual_mw": true,`, "", 1)))
	require.NoError(t, err)
	fixed.(*MWInterpolated).SetFluid(fixedGas(0.028))
	h, err := fixed.PolytropicHead(200, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 19, h, 1e-6)
}

func TestMWKeepsSettingsMadeBeforeFirstMap(t *testing.T) {
	m := NewMWInterpolated()
	ref := Reference{MolecularWeight: 20, Temperature: 300, Pressure: 40, Z: 0.9}
	m.SetUseRealKappa(true)
	m.SetReferenceConditions(ref)
	surge, err := boundary.NewSurge([]float64{150}, []float64{10})
	require.NoError(t, err)
	m.SetSurgeCurve(surge)

	speeds := []float64{1000, 2000}
	flow := [][]float64{{100, 200, 300}, {200, 400, 600}}
	require.NoError(t, m.AddMapAtMW(18, nil, speeds, flow,
		[][]float64{{20, 19, 16}, {80, 76, 64}}, nil,
		[][]float64{{70, 80, 75}, {70, 80, 75}}))

	assert.True(t, m.UseRealKappa())
	assert.Equal(t, ref, m.ReferenceConditions())
	assert.Same(t, surge, m.SurgeCurve())
	assert.Equal(t, 2, m.StoneWallCurve().Len())

	// Replacing the base map keeps the composite settings.
	require.NoError(t, m.AddMapAtMW(18, nil, speeds, flow,
		[][]float64{{21, 20, 17}, {84, 80, 68}}, nil,
		[][]float64{{70, 80, 75}, {70, 80, 75}}))
	assert.True(t, m.UseRealKappa())
	assert.Equal(t, ref, m.ReferenceConditions())
}

func TestLoadRejectsUnknownType(t *testing.T) {
	_, err := Load(strings.NewReader(`{"type": "mystery"}`))
	assert.ErrorIs(t, err, curve.ErrConfig)

	_, err = Load(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestLoadSampleMap(t *testing.T) {
	m, err := LoadFile(filepath.Join("..", "..", "maps", "sample.json"))
	require.NoError(t, err)
	assert.Equal(t, HeadKJPerKg, m.HeadUnit())
	assert.InDelta(t, 10556.5, m.ReferenceSpeed(), 1e-9)
	assert.Equal(t, 19.2, m.ReferenceConditions().MolecularWeight)
	assert.True(t, m.SurgeCurve().Active())
}
