package solver

import (
	"math"
)

// FlowOptions tunes NewtonFlow.
type FlowOptions struct {
	Guess     float64 // starting flow; non-positive uses DefaultFlowGuess
	Tolerance float64
	MaxIter   int
}

// DefaultFlowGuess seeds the flow iteration when the caller has no estimate.
const DefaultFlowGuess = 1000.0

// NewtonFlow finds the flow at which g(flow) equals target, where g falls
// as flow rises (head along a speed line). Non-positive targets return the
// guess unchanged. The result is never negative; when the iteration cannot
// produce a positive flow the guess is returned.
func NewtonFlow(g func(flow float64) float64, target float64, opts FlowOptions) Result {
	fallback := opts.Guess
	if fallback <= 0 {
		fallback = 1.0
	}
	if !(target > 0) {
		return Result{Value: fallback, Method: MethodNewton}
	}

	tol := opts.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = 100
	}

	x := opts.Guess
	if x <= 0 {
		x = DefaultFlowGuess
	}
	prevX := x * 1.1
	prevErr := g(prevX) - target

	iters := 0
	var e float64
	for iters < maxIter {
		iters++
		e = g(x) - target
		if math.Abs(e) < tol {
			return Result{Value: math.Max(0, x), Residual: e, Iterations: iters, Method: MethodNewton, Converged: true}
		}

		deriv := (e - prevErr) / (x - prevX)
		if math.IsNaN(deriv) || math.Abs(deriv) < 1e-10 {
			break
		}

		prevX, prevErr = x, e
		x -= e / deriv
		if x < 0 {
			x = fallback * 0.1
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			break
		}
	}

	if x > 0 && !math.IsNaN(x) && !math.IsInf(x, 0) {
		return Result{Value: x, Residual: g(x) - target, Iterations: iters, Method: MethodNewton}
	}
	return Result{Value: fallback, Residual: math.NaN(), Iterations: iters, Method: MethodNewton}
}
