package compressor

import (
	"math"

	"github.com/talgya/compsim/internal/telemetry"
)

// Telemetry returns the current readings with their plausible ranges.
// Readings that need the inlet gas are NaN when the host gave none.
func (c *Compressor) Telemetry() telemetry.Snapshot {
	s := telemetry.Snapshot{Time: c.simTime}
	op := c.op

	inP, inT, massFlow := math.NaN(), math.NaN(), math.NaN()
	if op.Inlet != nil {
		inP, inT, massFlow = op.Inlet.Pressure(), op.Inlet.Temperature(), op.Inlet.MassFlow()
	}
	ratio := math.NaN()
	if inP > 0 && op.DischargePressure > 0 {
		ratio = op.DischargePressure / inP
	}

	s.Add("inlet_pressure", inP, 0, 200, "bara")
	s.Add("outlet_pressure", op.DischargePressure, 0, 500, "bara")
	s.Add("inlet_temperature", inT, 200, 500, "K")
	s.Add("outlet_temperature", op.DischargeTemperature, 200, 700, "K")
	s.Add("compression_ratio", ratio, 1, 10, "ratio")
	s.Add("polytropic_efficiency", op.Efficiency/100, 0, 1, "fraction")
	s.Add("power", op.Power, 0, 50000, "kW")
	// Rest and start-up are plausible speeds too; allow some overspeed.
	s.Add("speed", c.speed, 0, 1.1*c.chart.MaxSpeed(), "rpm")
	s.Add("surge_fraction", c.SurgeMargin(), 0, 2, "fraction")
	s.Add("polytropic_head", c.chart.HeadUnit().ToKJPerKg(op.Head), 0, 500, "kJ/kg")
	s.Add("inlet_flow", massFlow, 0, 500, "kg/s")
	return s
}
