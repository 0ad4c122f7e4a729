// Package units provides the physical constants and unit conversions shared
// by the compressor model. Every number that is not a tuning default lives
// here so map, driver and plant code agree on the same references.
package units

import "math"

// Universal constants.
const (
	// Gravity is standard gravitational acceleration in m/s².
	// Converts between head in meters and specific energy in kJ/kg.
	Gravity = 9.80665

	// GasConstant is the molar gas constant in J/(mol·K).
	GasConstant = 8.314462618
)

// ISO reference conditions for gas-turbine ratings.
const (
	// ISOTemperature is the ISO 3977 ambient temperature in K (15 °C).
	ISOTemperature = 288.15

	// ISOPressure is the ISO ambient pressure in bara.
	ISOPressure = 1.01325
)

// Rotational conversions.
var (
	// RPMToRadPerSec converts shaft speed in RPM to angular velocity in rad/s.
	RPMToRadPerSec = 2 * math.Pi / 60

	// RadPerSecToRPM is the inverse of RPMToRadPerSec.
	RadPerSecToRPM = 60 / (2 * math.Pi)
)

// Time.
const (
	// SecondsPerHour converts operating time between seconds and hours.
	SecondsPerHour = 3600.0
)
