package astrokit

import (
	"fmt"
	"math"
	"time"
)

// Station defines a ground station.
type Station struct {
	Name         string
	R, V         []float64 // position and velocity in ECEF
	LatΦ, Longθ  float64   // these are stored in radians!
	Altitude     float64   // km above the reference ellipsoid
	MinElevation float64   // degrees; accesses require el >= MinElevation
	Planet       CelestialObject
}

// NewStation returns a new station on Earth. Angles in degrees; latitudes
// are signed so they bypass the wrapping of Deg2rad.
func NewStation(name string, altitude, minElevation, latΦ, longθ float64) Station {
	R := GEO2ECEF(altitude, latΦ*deg2rad, longθ*deg2rad)
	V := Cross([]float64{0, 0, EarthRotationRate}, R)
	return Station{name, R, V, latΦ * deg2rad, longθ * deg2rad, altitude, minElevation, Earth}
}

func (s Station) String() string {
	return fmt.Sprintf("%s (%f,%f); alt = %f km; el >= %f deg", s.Name, s.LatΦ/deg2rad, s.Longθ/deg2rad, s.Altitude, s.MinElevation)
}

// RangeElAz returns the range vector (in ECEF), range, elevation and azimuth
// (in degrees) of a given R vector in ECEF.
func (s Station) RangeElAz(rECEF []float64) (ρECEF []float64, ρ, el, az float64) {
	ρECEF = make([]float64, 3)
	for i := 0; i < 3; i++ {
		ρECEF[i] = rECEF[i] - s.R[i]
	}
	ρ = Norm(ρECEF)
	rSEZ := MxV33(R3(s.Longθ), ρECEF)
	rSEZ = MxV33(R2(math.Pi/2-s.LatΦ), rSEZ)
	el = math.Asin(rSEZ[2]/ρ) / deg2rad
	az = math.Mod(2*math.Pi+math.Atan2(rSEZ[1], -rSEZ[0]), 2*math.Pi) / deg2rad
	return
}

// Visible returns whether the given inertial state is visible from this
// station: elevation at or above the threshold and line of sight clear of
// the ellipsoid.
func (s Station) Visible(st State) bool {
	rECEF := ECI2ECEF(st.R[:], GST(st.DT))
	_, _, el, _ := s.RangeElAz(rECEF)
	if el < s.MinElevation {
		return false
	}
	return !ellipsoidOccluded(s.R, rECEF, s.Planet)
}

// RangeRate returns the range rate, in km/s, of the given inertial state.
func (s Station) RangeRate(st State) float64 {
	θgst := GST(st.DT)
	rECEF := ECI2ECEF(st.R[:], θgst)
	vECEF := ECI2ECEF(st.V[:], θgst)
	ρECEF, ρ, _, _ := s.RangeElAz(rECEF)
	vDiff := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vDiff[i] = vECEF[i] - s.V[i]
	}
	return dot(ρECEF, vDiff) / ρ
}

// Passes samples the ephemeris at the given step and returns the visibility
// windows of this station. A pass ends at the first sample below the mask;
// one still in progress at the end of the ephemeris is closed there.
func (s Station) Passes(eph *Ephemeris, step time.Duration) []AccessInterval {
	if step <= 0 {
		step = 10 * time.Second
	}
	var passes []AccessInterval
	var current *AccessInterval
	end := eph.End()
	for dt := eph.Start(); !dt.After(end); dt = dt.Add(step) {
		st, err := eph.At(dt)
		if err != nil {
			break
		}
		rECEF := ECI2ECEF(st.R[:], GST(st.DT))
		_, _, el, _ := s.RangeElAz(rECEF)
		if el >= s.MinElevation && !ellipsoidOccluded(s.R, rECEF, s.Planet) {
			if current == nil {
				current = &AccessInterval{Start: dt, MaxElevation: el}
			}
			if el > current.MaxElevation {
				current.MaxElevation = el
			}
		} else if current != nil {
			// Close at the first sample below the mask so every pass
			// has a positive duration.
			current.End = dt
			passes = append(passes, *current)
			current = nil
		}
	}
	if current != nil {
		current.End = end
		if !current.End.After(current.Start) {
			current.End = current.Start.Add(step)
		}
		passes = append(passes, *current)
	}
	return passes
}
