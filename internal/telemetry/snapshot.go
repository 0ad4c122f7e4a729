// Package telemetry is a bounded, named view of a machine's state for
// monitoring consumers. Every value carries a unit and a plausible range
// so it can be normalised without further knowledge.
package telemetry

import (
	"encoding/json"
	"math"
	"slices"
)

// Value is one named reading.
type Value struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Unit  string  `json:"unit"`
}

// Normalized maps the reading into [0, 1] over [Min, Max]. NaN readings
// and empty ranges normalise to 0.
func (v Value) Normalized() float64 {
	span := v.Max - v.Min
	if math.IsNaN(v.Value) || !(span > 0) {
		return 0
	}
	f := (v.Value - v.Min) / span
	return math.Max(0, math.Min(1, f))
}

// MarshalJSON writes a missing (NaN or infinite) reading as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var val *float64
	if !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0) {
		val = &v.Value
	}
	return json.Marshal(struct {
		Name  string   `json:"name"`
		Value *float64 `json:"value"`
		Min   float64  `json:"min"`
		Max   float64  `json:"max"`
		Unit  string   `json:"unit"`
	}{v.Name, val, v.Min, v.Max, v.Unit})
}

// Snapshot is an ordered set of readings taken at one simulation time.
type Snapshot struct {
	Time   float64 `json:"time"` // simulation seconds
	Values []Value `json:"values"`
}

// Add appends a reading.
func (s *Snapshot) Add(name string, value, lo, hi float64, unit string) {
	s.Values = append(s.Values, Value{Name: name, Value: value, Min: lo, Max: hi, Unit: unit})
}

// Get returns the reading called name.
func (s Snapshot) Get(name string) (Value, bool) {
	i := slices.IndexFunc(s.Values, func(v Value) bool { return v.Name == name })
	if i < 0 {
		return Value{}, false
	}
	return s.Values[i], true
}

// Names lists reading names in insertion order.
func (s Snapshot) Names() []string {
	out := make([]string, len(s.Values))
	for i, v := range s.Values {
		out[i] = v.Name
	}
	return out
}

// Map returns raw values by name.
func (s Snapshot) Map() map[string]float64 {
	out := make(map[string]float64, len(s.Values))
	for _, v := range s.Values {
		out[v.Name] = v.Value
	}
	return out
}

// Normalized returns every reading mapped into [0, 1], in insertion order.
func (s Snapshot) Normalized() []float64 {
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		out[i] = v.Normalized()
	}
	return out
}
