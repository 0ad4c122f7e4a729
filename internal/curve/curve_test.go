package curve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesLengths(t *testing.T) {
	_, err := New(1000, []float64{1, 2, 3}, []float64{1, 2}, nil, []float64{80, 80, 80})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "head", cfgErr.Field)

	_, err = New(1000, []float64{1, 2, 3}, []float64{1, 2, 3}, []float64{1, 2}, []float64{80, 80, 80})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(0, []float64{1}, []float64{1}, nil, []float64{1})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewCopiesInput(t *testing.T) {
	flow := []float64{1, 2, 3}
	c, err := New(1000, flow, []float64{3, 2, 1}, nil, []float64{70, 80, 75})
	require.NoError(t, err)
	flow[0] = 99
	assert.Equal(t, 1.0, c.Flow[0])
	assert.Equal(t, c.Flow, c.EfficiencyFlow())
}

func TestMinMaxFlowIndexUnsorted(t *testing.T) {
	c := Curve{Speed: 1, Flow: []float64{5, 2, 9, 4}, Head: []float64{1, 2, 3, 4}}
	assert.Equal(t, 1, c.MinFlowIndex())
	assert.Equal(t, 2, c.MaxFlowIndex())
}

func TestFromArrays(t *testing.T) {
	_, err := FromArrays(nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = FromArrays([]float64{1000, 2000}, [][]float64{{1}}, [][]float64{{1}}, nil, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrConfig)

	curves, err := FromArrays(
		[]float64{1000, 2000},
		[][]float64{{1, 2}, {2, 4}},
		[][]float64{{10, 9}, {40, 36}},
		nil,
		[][]float64{{80, 79}, {81, 80}},
	)
	require.NoError(t, err)
	require.Len(t, curves, 2)
	assert.Equal(t, 2000.0, curves[1].Speed)
}

func TestSplinePassesThroughKnots(t *testing.T) {
	xs := []float64{3, 1, 2, 5, 4}
	ys := []float64{9, 1, 4, 25, 16}
	s, err := NewSpline(xs, ys)
	require.NoError(t, err)

	for i, x := range xs {
		assert.InDelta(t, ys[i], s.At(x), 1e-9)
	}
	lo, hi := s.Domain()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 5.0, hi)
	assert.True(t, s.InRange(2.5))
	assert.False(t, s.InRange(5.5))
}

func TestSplineLinearExtension(t *testing.T) {
	s, err := NewSpline([]float64{1, 2, 3, 4}, []float64{10, 20, 25, 27})
	require.NoError(t, err)

	// Beyond the top: slope of the last two samples is 2.
	assert.InDelta(t, 27+2*6, s.At(10), 1e-9)
	// Below the bottom: slope of the first two samples is 10.
	assert.InDelta(t, 10-10*1, s.At(0), 1e-9)
}

func TestSplineSmallSampleModes(t *testing.T) {
	one, err := NewSpline([]float64{7}, []float64{42})
	require.NoError(t, err)
	assert.Equal(t, 42.0, one.At(-100))
	assert.Equal(t, 42.0, one.At(100))

	two, err := NewSpline([]float64{0, 10}, []float64{0, 5})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, two.At(5), 1e-12)
	assert.InDelta(t, 10, two.At(20), 1e-12)
}

func TestSplineDuplicateXLastWins(t *testing.T) {
	s, err := NewSpline([]float64{1, 2, 2, 3}, []float64{1, 5, 7, 9})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.InDelta(t, 7, s.At(2), 1e-12)
}

func TestSplineRejectsBadInput(t *testing.T) {
	_, err := NewSpline(nil, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewSpline([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestFitQuadraticRecoversExactPolynomial(t *testing.T) {
	want := Polynomial{2, -3, 0.5}
	xs := []float64{-2, -1, 0, 1, 2, 3, 4}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = want.At(x)
	}

	got, err := FitQuadratic(xs, ys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestFitPolynomialDropsDegree(t *testing.T) {
	p, err := FitQuadratic([]float64{1, 3}, []float64{2, 6})
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.InDelta(t, 4, p.At(2), 1e-9)

	c, err := FitQuadratic([]float64{5}, []float64{7})
	require.NoError(t, err)
	assert.Equal(t, Polynomial{7}, c)
}

func TestPolynomialDerivative(t *testing.T) {
	p := Polynomial{1, 2, 3}
	assert.Equal(t, Polynomial{2, 6}, p.Derivative())
	assert.Equal(t, Polynomial{0}, Polynomial{5}.Derivative())
}

func TestExtrapolateCoincident(t *testing.T) {
	assert.Equal(t, 3.0, Extrapolate(1, 2, 1, 3, 10))
}
