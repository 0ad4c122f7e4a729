// Package curve holds the measured speed lines of a compressor map and the
// numerical helpers used to fit them: splines with linear end extension and
// polynomial least squares.
package curve

import (
	"slices"
)

// Curve is one speed line of a performance map. Efficiency may be sampled at
// different flows than head; EffFlow carries those flows and is empty when
// efficiency shares Flow.
type Curve struct {
	Speed      float64   `json:"speed"`
	Flow       []float64 `json:"flow"`
	Head       []float64 `json:"head"`
	EffFlow    []float64 `json:"eff_flow,omitempty"`
	Efficiency []float64 `json:"efficiency"`
}

// New copies the given samples into a validated Curve.
func New(speed float64, flow, head, effFlow, efficiency []float64) (Curve, error) {
	c := Curve{
		Speed:      speed,
		Flow:       slices.Clone(flow),
		Head:       slices.Clone(head),
		EffFlow:    slices.Clone(effFlow),
		Efficiency: slices.Clone(efficiency),
	}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// Validate checks that the parallel sequences line up.
func (c Curve) Validate() error {
	const op = "curve.Validate"
	if !(c.Speed > 0) {
		return NewConfigError(op, "speed", "must be positive, got %g", c.Speed)
	}
	if len(c.Flow) == 0 {
		return NewConfigError(op, "flow", "speed %g has no samples", c.Speed)
	}
	if len(c.Flow) != len(c.Head) {
		return NewConfigError(op, "head", "speed %g has %d flow but %d head samples",
			c.Speed, len(c.Flow), len(c.Head))
	}
	if n := len(c.EfficiencyFlow()); n != len(c.Efficiency) {
		return NewConfigError(op, "efficiency", "speed %g has %d efficiency flow but %d efficiency samples",
			c.Speed, n, len(c.Efficiency))
	}
	return nil
}

// EfficiencyFlow returns the flows at which Efficiency was sampled.
func (c Curve) EfficiencyFlow() []float64 {
	if len(c.EffFlow) == 0 {
		return c.Flow
	}
	return c.EffFlow
}

// MinFlowIndex returns the index of the lowest-flow sample (the surge point).
func (c Curve) MinFlowIndex() int {
	idx := 0
	for i := 1; i < len(c.Flow); i++ {
		if c.Flow[i] < c.Flow[idx] {
			idx = i
		}
	}
	return idx
}

// MaxFlowIndex returns the index of the highest-flow sample (the stonewall point).
func (c Curve) MaxFlowIndex() int {
	idx := 0
	for i := 1; i < len(c.Flow); i++ {
		if c.Flow[i] > c.Flow[idx] {
			idx = i
		}
	}
	return idx
}

// Clone returns a deep copy.
func (c Curve) Clone() Curve {
	return Curve{
		Speed:      c.Speed,
		Flow:       slices.Clone(c.Flow),
		Head:       slices.Clone(c.Head),
		EffFlow:    slices.Clone(c.EffFlow),
		Efficiency: slices.Clone(c.Efficiency),
	}
}

// FromArrays zips the per-speed arrays used by map setters into Curves.
// effFlow may be nil, meaning efficiency shares the head flows.
func FromArrays(speeds []float64, flow, head, effFlow, efficiency [][]float64) ([]Curve, error) {
	const op = "curve.FromArrays"
	n := len(speeds)
	if n == 0 {
		return nil, NewConfigError(op, "speeds", "at least one speed is required")
	}
	if len(flow) != n || len(head) != n || len(efficiency) != n {
		return nil, NewConfigError(op, "curves", "%d speeds but %d flow, %d head, %d efficiency rows",
			n, len(flow), len(head), len(efficiency))
	}
	if effFlow != nil && len(effFlow) != n {
		return nil, NewConfigError(op, "effFlow", "%d speeds but %d efficiency flow rows", n, len(effFlow))
	}

	curves := make([]Curve, 0, n)
	for i, s := range speeds {
		var ef []float64
		if effFlow != nil {
			ef = effFlow[i]
		}
		c, err := New(s, flow[i], head[i], ef, efficiency[i])
		if err != nil {
			return nil, err
		}
		curves = append(curves, c)
	}
	return curves, nil
}
