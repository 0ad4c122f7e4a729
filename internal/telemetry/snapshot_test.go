package telemetry

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	var s Snapshot
	s.Add("speed", 9000, 8000, 12000, "rpm")
	s.Add("power", 60000, 0, 50000, "kW")
	s.Add("surge_fraction", math.NaN(), 0, 2, "fraction")
	s.Add("flat", 3, 3, 3, "")

	assert.Equal(t, []string{"speed", "power", "surge_fraction", "flat"}, s.Names())
	assert.Equal(t, []float64{0.25, 1, 0, 0}, s.Normalized())

	v, ok := s.Get("power")
	require.True(t, ok)
	assert.Equal(t, "kW", v.Unit)
	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 9000.0, s.Map()["speed"])
}

func TestNormalizedClampsBelowRange(t *testing.T) {
	v := Value{Value: -5, Min: 0, Max: 10}
	assert.Zero(t, v.Normalized())
}

func TestMissingReadingEncodesAsNull(t *testing.T) {
	var s Snapshot
	s.Add("inlet_pressure", math.NaN(), 0, 200, "bara")
	s.Add("speed", 9000, 8000, 12000, "rpm")

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":0,"values":[
		{"name":"inlet_pressure","value":null,"min":0,"max":200,"unit":"bara"},
		{"name":"speed","value":9000,"min":8000,"max":12000,"unit":"rpm"}]}`, string(b))
}
