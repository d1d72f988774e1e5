package astrokit

import (
	"math"
	"time"
)

// ShadowFactor returns the fraction ν of the solar disk visible from the
// position R (body-centered inertial, km) around the occulting body at the
// given epoch: 1 in full sunlight, 0 in umbra, and a linear penumbra ramp in
// between using a conical shadow geometry.
func ShadowFactor(dt time.Time, R []float64, occulting CelestialObject) float64 {
	rSun := SunPositionECI(dt)
	sat2Sun := make([]float64, 3)
	for i := 0; i < 3; i++ {
		sat2Sun[i] = rSun[i] - R[i]
	}
	rNorm := norm(R)
	dSun := norm(sat2Sun)
	// Apparent angular radii of the occulting body and of the Sun.
	θBody := math.Asin(occulting.Radius / rNorm)
	θSun := math.Asin(Sun.Radius / dSun)
	// Angle between the anti-radial direction and the satellite-to-Sun vector.
	cosθ := -dot(R, sat2Sun) / (rNorm * dSun)
	if cosθ > 1 {
		cosθ = 1
	} else if cosθ < -1 {
		cosθ = -1
	}
	θ := math.Acos(cosθ)
	switch {
	case θ >= θBody+θSun:
		return 1 // full sunlight
	case θ <= θBody-θSun:
		return 0 // umbra
	default:
		return (θ - (θBody - θSun)) / (2 * θSun)
	}
}
