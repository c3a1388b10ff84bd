package engine

import "math"

const (
	// VolumeCurveExponent shapes the perceived loudness curve.
	VolumeCurveExponent = 0.5
	// MinVolumeDB is the attenuation applied at the quietest audible setting.
	MinVolumeDB = -10.0
)

// fractionToExponent maps a linear volume fraction [0,1] to an exponent for
// effects.Volume (base 2). Zero maps to the floor; callers silence the
// stream separately at exactly zero.
func fractionToExponent(f float64) float64 {
	if f <= 0 {
		return MinVolumeDB
	}
	if f >= 1 {
		return 0
	}

	adjusted := math.Pow(f, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

// effectiveVolume combines a track's own volume with the master volume
// percentage.
func effectiveVolume(trackVolume float64, masterPercent int) float64 {
	if masterPercent < 0 {
		masterPercent = 0
	}
	if masterPercent > 100 {
		masterPercent = 100
	}
	v := trackVolume * float64(masterPercent) / 100.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
