// Package solver inverts monotone map relations that have no closed form:
// speed for a required head, flow for a required head. The main path is a
// damped secant-Newton iteration seeded from the fan laws, with a bisection
// fallback that always returns an estimate.
package solver

import (
	"math"

	"github.com/talgya/compsim/internal/units"
)

// Method names the stage that produced a Result.
type Method string

const (
	MethodNewton    Method = "newton"
	MethodBisection Method = "bisection"
)

// Options tunes Invert. Zero fields take the defaults of DefaultOptions.
type Options struct {
	Guess float64 // initial iterate, usually a fan-law estimate
	Lower float64 // lower bound for iterates
	Upper float64 // upper bound for iterates

	Damping        float64 // fraction of the Newton step applied
	MaxStepFrac    float64 // step cap as a fraction of the current iterate
	Tolerance      float64 // absolute residual tolerance
	MaxNewton      int
	MaxBisection   int
	BracketWidth   float64 // bisection stops once the bracket is narrower
	SeedOffsetFrac float64 // second secant point at Guess·(1+SeedOffsetFrac)
}

// DefaultOptions returns the tuning used for speed inversion.
func DefaultOptions() Options {
	return Options{
		Damping:        0.7,
		MaxStepFrac:    0.3,
		Tolerance:      1e-6,
		MaxNewton:      50,
		MaxBisection:   50,
		BracketWidth:   1.0,
		SeedOffsetFrac: 0.01,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Damping <= 0 {
		o.Damping = d.Damping
	}
	if o.MaxStepFrac <= 0 {
		o.MaxStepFrac = d.MaxStepFrac
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxNewton <= 0 {
		o.MaxNewton = d.MaxNewton
	}
	if o.MaxBisection <= 0 {
		o.MaxBisection = d.MaxBisection
	}
	if o.BracketWidth <= 0 {
		o.BracketWidth = d.BracketWidth
	}
	if o.SeedOffsetFrac == 0 {
		o.SeedOffsetFrac = d.SeedOffsetFrac
	}
	return o
}

// Result is the outcome of an inversion.
type Result struct {
	Value      float64
	Residual   float64 // f(Value) − target
	Iterations int     // Newton plus bisection evaluations
	Method     Method
	Converged  bool // residual within tolerance
}

// Invert finds x in [Lower, Upper] with f(x) = target, assuming f increases
// with x (head rises with speed). It never fails: when the Newton stage
// stalls the bisection stage returns its best bracket midpoint.
func Invert(f func(x float64) float64, target float64, opts Options) Result {
	o := opts.withDefaults()
	lower, upper := o.Lower, o.Upper
	if upper < lower {
		lower, upper = upper, lower
	}

	x := units.Clamp(o.Guess, lower, upper)
	prevX := x * (1 + o.SeedOffsetFrac)
	prevErr := f(prevX) - target

	iters := 0
	for iters < o.MaxNewton {
		iters++
		fx := f(x)
		e := fx - target
		if math.Abs(e) < o.Tolerance {
			return Result{Value: x, Residual: e, Iterations: iters, Method: MethodNewton, Converged: true}
		}

		deriv := (e - prevErr) / (x - prevX)
		if math.IsNaN(deriv) || math.Abs(deriv) < 1e-10 {
			// Fan-law slope: f ∝ x² ⇒ df/dx = 2f/x.
			deriv = 2 * fx / x
			if math.IsNaN(deriv) || math.Abs(deriv) < 1e-10 {
				break
			}
		}

		step := o.Damping * e / deriv
		maxStep := o.MaxStepFrac * math.Abs(x)
		step = units.Clamp(step, -maxStep, maxStep)

		prevX, prevErr = x, e
		x = units.Clamp(x-step, lower, upper)
		if math.Abs(x-prevX) < 1e-10 {
			break
		}
	}

	return bisect(f, target, lower, upper, o, iters)
}

func bisect(f func(float64) float64, target, lower, upper float64, o Options, iters int) Result {
	fLo, fHi := f(lower), f(upper)
	if target < fLo && target < fHi {
		lower *= 0.5
	} else if target > fLo && target > fHi {
		upper *= 2
	}

	for i := 0; i < o.MaxBisection; i++ {
		iters++
		mid := (lower + upper) / 2
		e := f(mid) - target
		if math.Abs(e) < o.Tolerance {
			return Result{Value: mid, Residual: e, Iterations: iters, Method: MethodBisection, Converged: true}
		}
		if e < 0 {
			lower = mid
		} else {
			upper = mid
		}
		if upper-lower < o.BracketWidth {
			return Result{Value: mid, Residual: e, Iterations: iters, Method: MethodBisection}
		}
	}

	mid := (lower + upper) / 2
	e := f(mid) - target
	return Result{Value: mid, Residual: e, Iterations: iters, Method: MethodBisection, Converged: math.Abs(e) < o.Tolerance}
}

// SpeedBounds returns the iterate bounds for speed inversion over a map
// spanning [minSpeed, maxSpeed]. With extrapolate set the range widens to
// half the minimum and one and a half times the maximum.
func SpeedBounds(minSpeed, maxSpeed, referenceSpeed float64, extrapolate bool) (lo, hi float64) {
	if minSpeed <= 0 {
		minSpeed = referenceSpeed * 0.5
	}
	if maxSpeed <= 0 || maxSpeed <= minSpeed {
		maxSpeed = referenceSpeed * 1.5
	}
	if !extrapolate {
		return minSpeed, maxSpeed
	}
	lo, hi = minSpeed*0.5, maxSpeed*1.5
	if lo <= 0 {
		lo = 100
	}
	return lo, hi
}

// FanLawGuess estimates the speed giving head from the head refHead seen at
// refSpeed, using head ∝ speed².
func FanLawGuess(refSpeed, refHead, head float64) float64 {
	if refHead > 0 && head > 0 {
		return refSpeed * math.Sqrt(head/refHead)
	}
	return refSpeed
}
