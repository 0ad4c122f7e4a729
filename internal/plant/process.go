// Package plant is the process the compressor sits in: a suction source at
// fixed conditions, a discharge system whose resistance drifts with demand,
// and an anti-surge recycle valve. It finds where the map meets the system
// curve and reports the resulting operating point.
package plant

import (
	"log/slog"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/fluid"
)

// Config describes the pipework. Heads are in kJ/kg whatever unit the map
// uses.
type Config struct {
	Gas         fluid.IdealGas // suction gas, mass flow ignored
	StaticHead  float64        // H0, kJ/kg
	Resistance  float64        // k in H0 + k·Q², kJ/kg per (m3/hr)²
	Disturbance float64        // relative swing of k, 0 disables
	Period      float64        // s, time scale of the swing
	RecycleFlow float64        // m3/hr returned to suction with the valve open
	Seed        int64
}

// DefaultConfig suits the sample map: about 45 kJ/kg at 3500 m3/hr.
func DefaultConfig() Config {
	return Config{
		Gas: fluid.IdealGas{
			MolarMassKg: 0.0192,
			PressureBar: 50,
			TempK:       303.15,
			Z:           0.92,
			KappaIdeal:  1.28,
			KappaReal:   1.31,
		},
		StaticHead:  20,
		Resistance:  25.0 / (3500 * 3500),
		Disturbance: 0.15,
		Period:      600,
		RecycleFlow: 1200,
		Seed:        42,
	}
}

// Validate checks the pipework is physical.
func (c Config) Validate() error {
	const op = "plant.Config"
	if err := c.Gas.Validate(); err != nil {
		return err
	}
	switch {
	case c.StaticHead < 0:
		return curve.NewConfigError(op, "static_head", "must not be negative, got %g", c.StaticHead)
	case !(c.Resistance > 0):
		return curve.NewConfigError(op, "resistance", "must be positive, got %g", c.Resistance)
	case c.Disturbance < 0 || c.Disturbance >= 1:
		return curve.NewConfigError(op, "disturbance", "must be in [0, 1), got %g", c.Disturbance)
	case c.Disturbance > 0 && !(c.Period > 0):
		return curve.NewConfigError(op, "period", "must be positive, got %g", c.Period)
	case c.RecycleFlow < 0:
		return curve.NewConfigError(op, "recycle_flow", "must not be negative, got %g", c.RecycleFlow)
	}
	return nil
}

// Process is the simulated plant. Not safe for concurrent use.
type Process struct {
	cfg   Config
	noise opensimplex.Noise
	t     float64
}

// New validates cfg and returns a process at time zero.
func New(cfg Config) (*Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Process{cfg: cfg, noise: opensimplex.New(cfg.Seed)}, nil
}

// Config returns the pipework description.
func (p *Process) Config() Config { return p.cfg }

// Gas returns the suction gas.
func (p *Process) Gas() fluid.IdealGas { return p.cfg.Gas }

// Time returns the process clock in seconds.
func (p *Process) Time() float64 { return p.t }

// Advance moves the demand disturbance forward by dt seconds.
func (p *Process) Advance(dt float64) {
	if dt > 0 {
		p.t += dt
	}
}

// SetStaticHead changes H0, e.g. when the operator moves a discharge valve.
func (p *Process) SetStaticHead(h float64) { p.cfg.StaticHead = math.Max(h, 0) }

// Resistance returns k at the current time.
func (p *Process) Resistance() float64 {
	if p.cfg.Disturbance == 0 {
		return p.cfg.Resistance
	}
	swing := octaveNoise(p.noise, p.t/p.cfg.Period, 3, 0.5)
	return p.cfg.Resistance * (1 + p.cfg.Disturbance*swing)
}

// SystemHead is the head the discharge system needs to pass flow forward.
func (p *Process) SystemHead(flow float64) float64 {
	return p.systemHead(flow, p.Resistance())
}

func (p *Process) systemHead(flow, k float64) float64 {
	q := math.Max(flow, 0)
	return p.cfg.StaticHead + k*q*q
}

// octaveNoise layers noise octaves along one axis; the result stays in [-1, 1].
func octaveNoise(noise opensimplex.Noise, x float64, octaves int, persistence float64) float64 {
	total, amplitude, maxVal, frequency := 0.0, 1.0, 0.0, 1.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, 0) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

// maxBisect caps the flow search.
const maxBisect = 100

// Solve finds the compressor flow where the map head at speed equals the
// system head, with the recycle flow returned to suction when recycleOpen.
// A stopped machine or an empty map gives a zero-flow point at suction
// conditions. Discharge conditions use the real-gas kappa when the map
// asks for it.
func (p *Process) Solve(m chart.Map, speed float64, recycleOpen bool) (compressor.OperatingPoint, error) {
	gas := p.cfg.Gas
	rest := compressor.OperatingPoint{
		Inlet:                gas.WithMassFlow(0),
		DischargePressure:    gas.PressureBar,
		DischargeTemperature: gas.TempK,
	}
	hi := maxScaledFlow(m.Curves(), speed)
	if speed <= 0 || hi <= 0 {
		return rest, nil
	}

	unit := m.HeadUnit()
	k := p.Resistance()
	recycle := 0.0
	if recycleOpen {
		recycle = p.cfg.RecycleFlow
	}
	excess := func(q float64) (float64, error) {
		h, err := m.PolytropicHead(q, speed)
		if err != nil {
			return 0, err
		}
		return unit.ToKJPerKg(h) - p.systemHead(q-recycle, k), nil
	}

	lo := 0.0
	fLo, err := excess(lo)
	if err != nil {
		return rest, err
	}
	fHi, err := excess(hi)
	if err != nil {
		return rest, err
	}

	var q float64
	switch {
	case fLo <= 0:
		// Shut-off head below the static head: nothing passes forward.
		q = recycle
	case fHi >= 0:
		q = hi
	default:
		for i := 0; i < maxBisect && hi-lo > 1e-6*hi; i++ {
			mid := 0.5 * (lo + hi)
			f, err := excess(mid)
			if err != nil {
				return rest, err
			}
			if f > 0 {
				lo = mid
			} else {
				hi = mid
			}
		}
		q = 0.5 * (lo + hi)
	}
	return p.pointAt(m, q, speed)
}

// pointAt evaluates the map at (q, speed) and compresses the suction gas.
func (p *Process) pointAt(m chart.Map, q, speed float64) (compressor.OperatingPoint, error) {
	head, err := m.PolytropicHead(q, speed)
	if err != nil {
		return compressor.OperatingPoint{}, err
	}
	eff, err := m.PolytropicEfficiency(q, speed)
	if err != nil {
		return compressor.OperatingPoint{}, err
	}

	inlet := p.cfg.Gas.WithVolumetricFlow(q)
	headKJ := m.HeadUnit().ToKJPerKg(head)
	d := fluid.Compress(inlet, headKJ, eff/100, m.UseRealKappa())
	if d.Ratio == 1 && headKJ > 0 {
		slog.Debug("compression degenerate", "flow", q, "speed", speed, "head", head, "eff", eff)
	}
	return compressor.OperatingPoint{
		Inlet:                inlet,
		Flow:                 q,
		Head:                 head,
		Efficiency:           eff,
		Power:                fluid.ShaftPower(inlet.MassFlow(), headKJ, eff/100),
		DischargePressure:    d.Pressure,
		DischargeTemperature: d.Temperature,
	}, nil
}

// maxScaledFlow returns 1.5 times the largest sampled flow, fan-law scaled
// to speed, as the upper end of the flow search.
func maxScaledFlow(curves []curve.Curve, speed float64) float64 {
	best := 0.0
	for _, c := range curves {
		for _, q := range c.Flow {
			best = math.Max(best, q*speed/c.Speed)
		}
	}
	return 1.5 * best
}
