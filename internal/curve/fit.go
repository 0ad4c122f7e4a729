package curve

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// Polynomial holds coefficients lowest order first: p[0] + p[1]x + p[2]x² …
type Polynomial []float64

// At evaluates the polynomial with Horner's rule.
func (p Polynomial) At(x float64) float64 {
	v := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}

// Derivative returns dp/dx.
func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{0}
	}
	d := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}
	return d
}

// FitPolynomial returns the least-squares polynomial of the given degree
// through (xs, ys). With fewer than degree+1 samples the degree drops to
// what the samples can determine.
func FitPolynomial(xs, ys []float64, degree int) (Polynomial, error) {
	const op = "curve.FitPolynomial"
	n := len(xs)
	if n != len(ys) {
		return nil, NewConfigError(op, "ys", "%d x samples but %d y samples", n, len(ys))
	}
	if n == 0 {
		return nil, NewConfigError(op, "xs", "no samples")
	}
	if degree > n-1 {
		degree = n - 1
	}
	if degree < 0 {
		degree = 0
	}

	cols := degree + 1
	a := mat.NewDense(n, cols, nil)
	for i, x := range xs {
		v := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, v)
			v *= x
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), ys...))

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%s: least squares: %w", op, err)
		}
		slog.Debug("polynomial fit is ill-conditioned", "degree", degree, "samples", n, "condition", float64(cond))
	}

	p := make(Polynomial, cols)
	for j := range p {
		p[j] = coef.AtVec(j)
	}
	return p, nil
}

// FitQuadratic is FitPolynomial with degree 2, the fit used for reduced
// head and efficiency.
func FitQuadratic(xs, ys []float64) (Polynomial, error) {
	return FitPolynomial(xs, ys, 2)
}
