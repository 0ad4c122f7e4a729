package chart

import (
	"github.com/talgya/compsim/internal/curve"
)

// FanLaw collapses every speed line onto one curve in reduced variables,
// head/speed² against flow/speed, and fits a quadratic to the pooled
// samples. Efficiency is fitted against flow/speed the same way.
type FanLaw struct {
	base
	headFit curve.Polynomial
	effFit  curve.Polynomial
}

// NewFanLaw returns an empty reduced-variable map.
func NewFanLaw() *FanLaw {
	m := &FanLaw{}
	m.base = newBase(m)
	return m
}

func (m *FanLaw) head(flow, speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return m.headFit.At(flow/speed) * speed * speed
}

func (m *FanLaw) efficiency(flow, speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return m.effFit.At(flow / speed)
}

func (m *FanLaw) refit(curves []curve.Curve) (func(), error) {
	var hx, hy, ex, ey []float64
	for _, c := range curves {
		s := c.Speed
		for i, q := range c.Flow {
			hx = append(hx, q/s)
			hy = append(hy, c.Head[i]/(s*s))
		}
		for i, q := range c.EfficiencyFlow() {
			ex = append(ex, q/s)
			ey = append(ey, c.Efficiency[i])
		}
	}

	headFit, err := curve.FitQuadratic(hx, hy)
	if err != nil {
		return nil, err
	}
	effFit, err := curve.FitQuadratic(ex, ey)
	if err != nil {
		return nil, err
	}
	return func() {
		m.headFit = headFit
		m.effFit = effFit
	}, nil
}

// HeadFit returns the reduced head coefficients, constant term first.
func (m *FanLaw) HeadFit() curve.Polynomial { return append(curve.Polynomial(nil), m.headFit...) }

// EfficiencyFit returns the efficiency coefficients, constant term first.
func (m *FanLaw) EfficiencyFit() curve.Polynomial { return append(curve.Polynomial(nil), m.effFit...) }
