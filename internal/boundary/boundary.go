// Package boundary models the surge and stonewall lines that bound a
// compressor map. Both share one interpolation core; the role decides on
// which side of the line an operating point counts as beyond the limit.
package boundary

import (
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/compsim/internal/curve"
)

// Role selects the limit predicate of a boundary curve.
type Role int

const (
	Surge     Role = iota // minimum stable flow; points left of the line are in surge
	StoneWall             // choke; points right of the line are choked
)

func (r Role) String() string {
	switch r {
	case Surge:
		return "surge"
	case StoneWall:
		return "stonewall"
	default:
		return "unknown"
	}
}

// beyond reports whether flow lies on the limited side of limitFlow.
func (r Role) beyond(flow, limitFlow float64) bool {
	if r == StoneWall {
		return flow > limitFlow
	}
	return flow < limitFlow
}

// Curve is a flow↔head boundary line. The zero value is an inactive surge
// curve with no samples.
type Curve struct {
	role       Role
	active     bool
	conditions []float64

	flow, head []float64 // sorted by ascending flow
	headAt     *curve.Spline
	flowAt     *curve.Spline
}

// New builds an active boundary curve from samples.
func New(role Role, flow, head []float64) (*Curve, error) {
	c := &Curve{role: role}
	if err := c.SetCurve(nil, flow, head); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSurge is New(Surge, flow, head).
func NewSurge(flow, head []float64) (*Curve, error) {
	return New(Surge, flow, head)
}

// NewStoneWall is New(StoneWall, flow, head).
func NewStoneWall(flow, head []float64) (*Curve, error) {
	return New(StoneWall, flow, head)
}

// Empty returns an inactive curve of the given role.
func Empty(role Role) *Curve {
	return &Curve{role: role}
}

// SetCurve replaces the samples. Exactly one sample switches the curve to
// constant mode. On error the previous samples are kept.
func (c *Curve) SetCurve(conditions, flow, head []float64) error {
	const op = "boundary.SetCurve"
	if len(flow) != len(head) {
		return curve.NewConfigError(op, "head", "%d flow but %d head samples", len(flow), len(head))
	}
	if len(flow) == 0 {
		return curve.NewConfigError(op, "flow", "a %s curve needs at least one sample", c.role)
	}
	for i := range flow {
		if math.IsNaN(flow[i]) || math.IsNaN(head[i]) {
			return curve.NewConfigError(op, "flow", "sample %d is NaN", i)
		}
	}

	sf, sh := curve.SortUnique(flow, head)
	headAt, err := curve.NewSpline(sf, sh)
	if err != nil {
		return err
	}
	flowAt, err := curve.NewSpline(sh, sf)
	if err != nil {
		return err
	}

	c.conditions = slices.Clone(conditions)
	c.flow, c.head = sf, sh
	c.headAt, c.flowAt = headAt, flowAt
	c.active = true
	return nil
}

// Flow returns the boundary flow at the given head. Outside the sampled
// head range the nearest two samples are extended linearly. Negative
// results clamp to zero and evaluation faults degrade to zero.
func (c *Curve) Flow(head float64) (flow float64) {
	if c.flowAt == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("boundary flow evaluation failed", "role", c.role, "head", head, "panic", r)
			flow = 0
		}
	}()
	return c.clamp(c.flowAt.At(head), "flow", head)
}

// Head returns the boundary head at the given flow, mirroring Flow.
func (c *Curve) Head(flow float64) (head float64) {
	if c.headAt == nil {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("boundary head evaluation failed", "role", c.role, "flow", flow, "panic", r)
			head = 0
		}
	}()
	return c.clamp(c.headAt.At(flow), "head", flow)
}

func (c *Curve) clamp(v float64, quantity string, query float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		slog.Warn("boundary evaluation not finite", "role", c.role, "quantity", quantity, "query", query)
		return 0
	}
	if v < 0 {
		return 0
	}
	return v
}

// IsLimit reports whether (head, flow) lies beyond the line: left of it for
// surge, right of it for stonewall. Inactive curves never limit.
func (c *Curve) IsLimit(head, flow float64) bool {
	if !c.active || c.flowAt == nil {
		return false
	}
	return c.role.beyond(flow, c.Flow(head))
}

// Distance returns the fractional margin to the line at the given head:
// flow/limit−1 for surge and limit/flow−1 for stonewall. Positive means
// inside the stable envelope. NaN when no margin can be formed.
func (c *Curve) Distance(head, flow float64) float64 {
	if c.flowAt == nil {
		return math.NaN()
	}
	limit := c.Flow(head)
	if c.role == StoneWall {
		if flow <= 0 {
			return math.NaN()
		}
		return limit/flow - 1
	}
	if limit <= 0 {
		return math.NaN()
	}
	return flow/limit - 1
}

// Role returns the curve's role.
func (c *Curve) Role() Role { return c.role }

// Active reports whether the curve takes part in limit checks.
func (c *Curve) Active() bool { return c.active }

// SetActive toggles participation in limit checks.
func (c *Curve) SetActive(active bool) { c.active = active }

// SinglePoint reports whether the curve is in constant mode.
func (c *Curve) SinglePoint() bool { return len(c.flow) == 1 }

// Len returns the number of distinct flow samples.
func (c *Curve) Len() int { return len(c.flow) }

// Points returns copies of the samples ordered by ascending flow.
func (c *Curve) Points() (flow, head []float64) {
	return slices.Clone(c.flow), slices.Clone(c.head)
}

// Conditions returns the chart conditions the curve was measured at.
func (c *Curve) Conditions() []float64 {
	return slices.Clone(c.conditions)
}
