package solver

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotConverged is returned by LegacyNewton when its iteration cap is hit.
var ErrNotConverged = errors.New("solver: iteration did not converge")

// ConvergenceError carries the state of a failed LegacyNewton run.
type ConvergenceError struct {
	Target     float64
	Last       float64
	Residual   float64
	Iterations int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("solver: no convergence for target %g after %d iterations (last %g, residual %g)",
		e.Target, e.Iterations, e.Last, e.Residual)
}

func (e *ConvergenceError) Unwrap() error {
	return ErrNotConverged
}

// LegacyMaxIter is the iteration cap of LegacyNewton.
const LegacyMaxIter = 100

// LegacyNewton runs an undamped secant iteration from start without bounds
// or fallback, and fails with ErrNotConverged after LegacyMaxIter steps.
//
// Deprecated: use Invert, which damps, bounds and falls back to bisection.
func LegacyNewton(f func(x float64) float64, target, start float64) (float64, error) {
	x := start
	prevX := x + 1
	prevErr := f(prevX) - target

	var e float64
	for i := 1; i <= LegacyMaxIter; i++ {
		e = f(x) - target
		if math.Abs(e) <= 1e-6 {
			return x, nil
		}
		deriv := (e - prevErr) / (x - prevX)
		prevX, prevErr = x, e
		x -= e / deriv
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return x, &ConvergenceError{Target: target, Last: x, Residual: e, Iterations: i}
		}
	}
	return x, &ConvergenceError{Target: target, Last: x, Residual: e, Iterations: LegacyMaxIter}
}
