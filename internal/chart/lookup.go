package chart

import (
	"sort"

	"github.com/talgya/compsim/internal/curve"
)

// Lookup interpolates each measured speed line with a spline and answers a
// query speed from the curves that bracket it. Between two lines the
// results of both are averaged; outside the measured range the edge line
// answers alone.
type Lookup struct {
	base
	lines     []lookupLine
	gearRatio float64
}

type lookupLine struct {
	speed float64
	head  *curve.Spline
	eff   *curve.Spline
}

// NewLookup returns an empty per-speed lookup map with gear ratio 1.
func NewLookup() *Lookup {
	m := &Lookup{gearRatio: 1}
	m.base = newBase(m)
	return m
}

// GearRatio returns the stored gearbox ratio between driver and map speed.
func (m *Lookup) GearRatio() float64 { return m.gearRatio }

// SetGearRatio stores the gearbox ratio. It is reported, never applied.
func (m *Lookup) SetGearRatio(r float64) error {
	if !(r > 0) {
		return curve.NewConfigError("chart.SetGearRatio", "gearRatio", "must be positive, got %g", r)
	}
	m.gearRatio = r
	return nil
}

// bracket returns the indices of the lines used for speed: one line on an
// exact match or outside the range, two otherwise.
func (m *Lookup) bracket(speed float64) []int {
	n := len(m.lines)
	i := sort.Search(n, func(i int) bool { return m.lines[i].speed >= speed })
	switch {
	case i == 0:
		return []int{0}
	case i == n:
		return []int{n - 1}
	case m.lines[i].speed == speed:
		return []int{i}
	}
	return []int{i - 1, i}
}

func (m *Lookup) average(speed float64, at func(lookupLine) float64) float64 {
	idx := m.bracket(speed)
	sum := 0.0
	for _, i := range idx {
		sum += at(m.lines[i])
	}
	return sum / float64(len(idx))
}

func (m *Lookup) head(flow, speed float64) float64 {
	return m.average(speed, func(l lookupLine) float64 { return l.head.At(flow) })
}

func (m *Lookup) efficiency(flow, speed float64) float64 {
	return m.average(speed, func(l lookupLine) float64 { return l.eff.At(flow) })
}

func (m *Lookup) refit(curves []curve.Curve) (func(), error) {
	lines := make([]lookupLine, 0, len(curves))
	for _, c := range curves {
		h, err := curve.NewSpline(c.Flow, c.Head)
		if err != nil {
			return nil, err
		}
		e, err := curve.NewSpline(c.EfficiencyFlow(), c.Efficiency)
		if err != nil {
			return nil, err
		}
		lines = append(lines, lookupLine{speed: c.Speed, head: h, eff: e})
	}
	return func() { m.lines = lines }, nil
}
