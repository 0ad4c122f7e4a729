package units

// HeadMetersToKJPerKg converts a length-equivalent head to specific energy.
func HeadMetersToKJPerKg(m float64) float64 {
	return m * Gravity / 1000
}

// HeadKJPerKgToMeters converts specific energy to a length-equivalent head.
func HeadKJPerKgToMeters(kj float64) float64 {
	return kj * 1000 / Gravity
}

// CelsiusToKelvin converts °C to K.
func CelsiusToKelvin(c float64) float64 {
	return c + 273.15
}

// KelvinToCelsius converts K to °C.
func KelvinToCelsius(k float64) float64 {
	return k - 273.15
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp blends a and b linearly; fraction 0 gives a, 1 gives b. Fractions
// outside [0,1] extrapolate.
func Lerp(a, b, fraction float64) float64 {
	return a + fraction*(b-a)
}
