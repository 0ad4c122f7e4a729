package chart

import (
	"log/slog"
	"math"
	"slices"

	"github.com/talgya/compsim/internal/boundary"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/solver"
)

// evaluator answers head and efficiency once a map is known to hold curves.
type evaluator interface {
	head(flow, speed float64) float64
	efficiency(flow, speed float64) float64
}

// model is an evaluator that can rebuild its fits. refit must not touch the
// receiver; the returned commit installs the new fits.
type model interface {
	evaluator
	refit(curves []curve.Curve) (commit func(), err error)
}

// base holds what every map variant stores: the speed lines, boundaries,
// units and reference conditions. Variants supply the head model.
type base struct {
	model model

	curves     []curve.Curve // ascending speed, unique
	conditions []float64

	surge     *boundary.Curve
	stonewall *boundary.Curve

	headUnit     HeadUnit
	useRealKappa bool
	ref          Reference

	minSpeed, maxSpeed, refSpeed float64
}

func newBase(m model) base {
	return base{
		model:     m,
		surge:     boundary.Empty(boundary.Surge),
		stonewall: boundary.Empty(boundary.StoneWall),
		headUnit:  HeadMeter,
	}
}

// SetCurves replaces every speed line. Efficiency shares the head flows.
func (b *base) SetCurves(conditions, speeds []float64, flow, head, efficiency [][]float64) error {
	return b.SetCurvesWithEffFlow(conditions, speeds, flow, head, nil, efficiency)
}

// SetCurvesWithEffFlow replaces every speed line, with efficiency sampled at
// its own flows. On error the map is unchanged.
func (b *base) SetCurvesWithEffFlow(conditions, speeds []float64, flow, head, effFlow, efficiency [][]float64) error {
	curves, err := curve.FromArrays(speeds, flow, head, effFlow, efficiency)
	if err != nil {
		return err
	}
	if err := b.install(uniqueBySpeed(curves)); err != nil {
		return err
	}
	b.conditions = slices.Clone(conditions)
	return nil
}

// AddCurve inserts one speed line, replacing any line at the same speed.
func (b *base) AddCurve(c curve.Curve) error {
	if err := c.Validate(); err != nil {
		return err
	}
	merged := make([]curve.Curve, 0, len(b.curves)+1)
	merged = append(merged, b.curves...)
	merged = append(merged, c.Clone())
	return b.install(uniqueBySpeed(merged))
}

func (b *base) install(curves []curve.Curve) error {
	commit, err := b.model.refit(curves)
	if err != nil {
		return err
	}
	commit()
	b.curves = curves
	b.minSpeed = curves[0].Speed
	b.maxSpeed = curves[len(curves)-1].Speed
	b.refSpeed = (b.minSpeed + b.maxSpeed) / 2
	slog.Debug("chart curves installed", "curves", len(curves),
		"min_speed", b.minSpeed, "max_speed", b.maxSpeed)
	return nil
}

// uniqueBySpeed sorts by speed keeping the last curve given for each speed.
func uniqueBySpeed(curves []curve.Curve) []curve.Curve {
	bySpeed := make(map[float64]curve.Curve, len(curves))
	for _, c := range curves {
		bySpeed[c.Speed] = c
	}
	out := make([]curve.Curve, 0, len(bySpeed))
	for _, c := range bySpeed {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b curve.Curve) int {
		switch {
		case a.Speed < b.Speed:
			return -1
		case a.Speed > b.Speed:
			return 1
		}
		return 0
	})
	return out
}

// Curves returns copies of the stored speed lines in ascending speed.
func (b *base) Curves() []curve.Curve {
	out := make([]curve.Curve, len(b.curves))
	for i, c := range b.curves {
		out[i] = c.Clone()
	}
	return out
}

// Conditions returns the chart conditions given with the curves.
func (b *base) Conditions() []float64 { return slices.Clone(b.conditions) }

func (b *base) empty() bool { return len(b.curves) == 0 }

// PolytropicHead returns head in HeadUnit at (flow, speed).
func (b *base) PolytropicHead(flow, speed float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return b.model.head(flow, speed), nil
}

// PolytropicEfficiency returns efficiency in percent at (flow, speed).
func (b *base) PolytropicEfficiency(flow, speed float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return b.model.efficiency(flow, speed), nil
}

// Speed returns the speed producing head at flow, searching up to half
// below the slowest and half above the fastest curve.
func (b *base) Speed(flow, head float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return invertSpeed(b.model, b, flow, head, true).Value, nil
}

// SpeedWithin is Speed restricted to the measured speed range.
func (b *base) SpeedWithin(flow, head float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return invertSpeed(b.model, b, flow, head, false).Value, nil
}

// LegacySpeed solves for speed with the undamped iteration.
//
// Deprecated: use Speed, which always returns an estimate.
func (b *base) LegacySpeed(flow, head float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return legacySpeed(b.model, b, flow, head)
}

// Flow returns the flow at which the speed line gives head. The result is
// never negative; guess is returned when the iteration fails.
func (b *base) Flow(head, speed, guess float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return invertFlow(b.model, head, speed, guess, false), nil
}

// FlowForGasHead inverts head divided by the efficiency fraction, i.e. the
// energy the gas must receive rather than the head it gains.
func (b *base) FlowForGasHead(head, speed, guess float64) (float64, error) {
	if b.empty() {
		return 0, ErrNoCurves
	}
	return invertFlow(b.model, head, speed, guess, true), nil
}

// GenerateSurgeCurve builds the surge line from the lowest-flow sample of
// each speed line.
func (b *base) GenerateSurgeCurve() error {
	if b.empty() {
		return ErrNoCurves
	}
	flow, head := edgePoints(b.curves, curve.Curve.MinFlowIndex)
	c := boundary.Empty(boundary.Surge)
	if err := c.SetCurve(b.conditions, flow, head); err != nil {
		return err
	}
	b.surge = c
	return nil
}

// GenerateStoneWallCurve builds the stonewall line from the highest-flow
// sample of each speed line.
func (b *base) GenerateStoneWallCurve() error {
	if b.empty() {
		return ErrNoCurves
	}
	flow, head := edgePoints(b.curves, curve.Curve.MaxFlowIndex)
	c := boundary.Empty(boundary.StoneWall)
	if err := c.SetCurve(b.conditions, flow, head); err != nil {
		return err
	}
	b.stonewall = c
	return nil
}

// edgePoints picks one sample per curve; the first curve to claim a flow
// keeps it.
func edgePoints(curves []curve.Curve, pick func(curve.Curve) int) (flow, head []float64) {
	seen := make(map[float64]bool, len(curves))
	for _, c := range curves {
		i := pick(c)
		if seen[c.Flow[i]] {
			continue
		}
		seen[c.Flow[i]] = true
		flow = append(flow, c.Flow[i])
		head = append(head, c.Head[i])
	}
	return flow, head
}

func (b *base) SurgeCurve() *boundary.Curve     { return b.surge }
func (b *base) StoneWallCurve() *boundary.Curve { return b.stonewall }

// SetSurgeCurve installs an externally built surge line. nil clears it.
func (b *base) SetSurgeCurve(c *boundary.Curve) {
	if c == nil {
		c = boundary.Empty(boundary.Surge)
	}
	b.surge = c
}

// SetStoneWallCurve installs an externally built stonewall line. nil clears it.
func (b *base) SetStoneWallCurve(c *boundary.Curve) {
	if c == nil {
		c = boundary.Empty(boundary.StoneWall)
	}
	b.stonewall = c
}

// closest returns the speed line nearest speed; ties go to the slower line.
func (b *base) closest(speed float64) (curve.Curve, bool) {
	if b.empty() {
		return curve.Curve{}, false
	}
	best := 0
	for i := 1; i < len(b.curves); i++ {
		if math.Abs(b.curves[i].Speed-speed) < math.Abs(b.curves[best].Speed-speed) {
			best = i
		}
	}
	return b.curves[best], true
}

func (b *base) edgeAtSpeed(speed float64, pick func(curve.Curve) int, wantHead bool) float64 {
	c, ok := b.closest(speed)
	if !ok {
		return math.NaN()
	}
	i := pick(c)
	if wantHead {
		return c.Head[i]
	}
	return c.Flow[i]
}

// SurgeFlowAtSpeed returns the surge-point flow of the nearest speed line.
func (b *base) SurgeFlowAtSpeed(speed float64) float64 {
	return b.edgeAtSpeed(speed, curve.Curve.MinFlowIndex, false)
}

// SurgeHeadAtSpeed returns the surge-point head of the nearest speed line.
func (b *base) SurgeHeadAtSpeed(speed float64) float64 {
	return b.edgeAtSpeed(speed, curve.Curve.MinFlowIndex, true)
}

// StoneWallFlowAtSpeed returns the choke-point flow of the nearest speed line.
func (b *base) StoneWallFlowAtSpeed(speed float64) float64 {
	return b.edgeAtSpeed(speed, curve.Curve.MaxFlowIndex, false)
}

// StoneWallHeadAtSpeed returns the choke-point head of the nearest speed line.
func (b *base) StoneWallHeadAtSpeed(speed float64) float64 {
	return b.edgeAtSpeed(speed, curve.Curve.MaxFlowIndex, true)
}

func (b *base) SurgeFlow(head float64) float64     { return b.surge.Flow(head) }
func (b *base) StoneWallFlow(head float64) float64 { return b.stonewall.Flow(head) }

func (b *base) IsSurge(head, flow float64) bool     { return b.surge.IsLimit(head, flow) }
func (b *base) IsStoneWall(head, flow float64) bool { return b.stonewall.IsLimit(head, flow) }

// DistanceToSurge is flow/surgeFlow − 1 at head; NaN without a surge line.
func (b *base) DistanceToSurge(head, flow float64) float64 {
	return b.surge.Distance(head, flow)
}

// DistanceToStoneWall is stonewallFlow/flow − 1 at head.
func (b *base) DistanceToStoneWall(head, flow float64) float64 {
	return b.stonewall.Distance(head, flow)
}

// MinSpeed returns the slowest speed line, 0 when empty.
func (b *base) MinSpeed() float64 { return b.minSpeed }

// MaxSpeed returns the fastest speed line, 0 when empty.
func (b *base) MaxSpeed() float64 { return b.maxSpeed }

// ReferenceSpeed is the midpoint of the speed range.
func (b *base) ReferenceSpeed() float64 { return b.refSpeed }

func (b *base) HeadUnit() HeadUnit { return b.headUnit }

// SetHeadUnit accepts "meter" or "kJ/kg". Stored heads are not converted.
func (b *base) SetHeadUnit(unit string) error {
	u, err := ParseHeadUnit(unit)
	if err != nil {
		return err
	}
	b.headUnit = u
	return nil
}

func (b *base) UseRealKappa() bool             { return b.useRealKappa }
func (b *base) SetUseRealKappa(use bool)       { b.useRealKappa = use }
func (b *base) ReferenceConditions() Reference { return b.ref }

func (b *base) SetReferenceConditions(ref Reference) { b.ref = ref }

// speedRange is implemented by base; MW composites borrow the range of
// their base map.
type speedRange interface {
	MinSpeed() float64
	MaxSpeed() float64
	ReferenceSpeed() float64
}

func invertSpeed(ev evaluator, r speedRange, flow, head float64, extrapolate bool) solver.Result {
	ref := r.ReferenceSpeed()
	lo, hi := solver.SpeedBounds(r.MinSpeed(), r.MaxSpeed(), ref, extrapolate)
	opts := solver.DefaultOptions()
	opts.Guess = solver.FanLawGuess(ref, ev.head(flow, ref), head)
	opts.Lower, opts.Upper = lo, hi

	res := solver.Invert(func(n float64) float64 { return ev.head(flow, n) }, head, opts)
	if !res.Converged {
		slog.Debug("speed inversion did not converge", "flow", flow, "head", head,
			"speed", res.Value, "residual", res.Residual, "method", res.Method)
	}
	return res
}

func legacySpeed(ev evaluator, r speedRange, flow, head float64) (float64, error) {
	return solver.LegacyNewton(func(n float64) float64 { return ev.head(flow, n) }, head, r.ReferenceSpeed())
}

func invertFlow(ev evaluator, head, speed, guess float64, gasHead bool) float64 {
	g := func(q float64) float64 { return ev.head(q, speed) }
	if gasHead {
		g = func(q float64) float64 {
			return ev.head(q, speed) / (ev.efficiency(q, speed) / 100)
		}
	}
	return solver.NewtonFlow(g, head, solver.FlowOptions{Guess: guess}).Value
}
