package curve

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/interp"
)

// Spline interpolates y(x) through sampled points with a natural cubic
// spline (piecewise linear for two points, constant for one). Beyond the
// sampled range it continues the end segment linearly, so callers always
// get a finite answer for finite x.
type Spline struct {
	xs, ys []float64
	fn     interp.Predictor
}

// NewSpline sorts the samples by x and fits them. Repeated x values keep
// the last y supplied.
func NewSpline(xs, ys []float64) (*Spline, error) {
	const op = "curve.NewSpline"
	if len(xs) != len(ys) {
		return nil, NewConfigError(op, "ys", "%d x samples but %d y samples", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, NewConfigError(op, "xs", "no samples")
	}

	sx, sy := SortUnique(xs, ys)
	s := &Spline{xs: sx, ys: sy}

	switch len(sx) {
	case 1:
		return s, nil
	case 2:
		var pl interp.PiecewiseLinear
		if err := pl.Fit(sx, sy); err != nil {
			return nil, NewConfigError(op, "xs", "linear fit: %v", err)
		}
		s.fn = &pl
	default:
		var nc interp.NaturalCubic
		if err := nc.Fit(sx, sy); err != nil {
			return nil, NewConfigError(op, "xs", "cubic fit: %v", err)
		}
		s.fn = &nc
	}
	return s, nil
}

// SortUnique returns copies of xs, ys ordered by ascending x with duplicate
// x values collapsed (last occurrence wins).
func SortUnique(xs, ys []float64) ([]float64, []float64) {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(xs[a], xs[b]) })

	sx := make([]float64, 0, len(xs))
	sy := make([]float64, 0, len(ys))
	for _, i := range idx {
		if n := len(sx); n > 0 && sx[n-1] == xs[i] {
			sy[n-1] = ys[i]
			continue
		}
		sx = append(sx, xs[i])
		sy = append(sy, ys[i])
	}
	return sx, sy
}

// At evaluates the spline, extending linearly beyond the sampled range.
func (s *Spline) At(x float64) float64 {
	n := len(s.xs)
	if n == 1 {
		return s.ys[0]
	}
	if x < s.xs[0] {
		return Extrapolate(s.xs[0], s.ys[0], s.xs[1], s.ys[1], x)
	}
	if x > s.xs[n-1] {
		return Extrapolate(s.xs[n-2], s.ys[n-2], s.xs[n-1], s.ys[n-1], x)
	}
	return s.fn.Predict(x)
}

// InRange reports whether x lies within the sampled domain.
func (s *Spline) InRange(x float64) bool {
	return x >= s.xs[0] && x <= s.xs[len(s.xs)-1]
}

// Domain returns the smallest and largest sampled x.
func (s *Spline) Domain() (lo, hi float64) {
	return s.xs[0], s.xs[len(s.xs)-1]
}

// Len returns the number of distinct samples.
func (s *Spline) Len() int {
	return len(s.xs)
}

// Samples returns copies of the sorted samples.
func (s *Spline) Samples() (xs, ys []float64) {
	return slices.Clone(s.xs), slices.Clone(s.ys)
}

// Extrapolate evaluates the straight line through (x0,y0) and (x1,y1) at x.
// Coincident x values give y1.
func Extrapolate(x0, y0, x1, y1, x float64) float64 {
	dx := x1 - x0
	if dx == 0 || math.IsNaN(dx) {
		return y1
	}
	slope := (y1 - y0) / dx
	return y0 + slope*(x-x0)
}
