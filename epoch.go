package astrokit

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
)

// Frame identifies the reference frame a state vector is expressed in.
type Frame uint8

const (
	// FrameInertial is the body-centered inertial frame (ECI for Earth).
	FrameInertial Frame = iota
	// FrameBodyFixed is the body-centered body-fixed rotating frame (ECEF for Earth).
	FrameBodyFixed
)

func (f Frame) String() string {
	switch f {
	case FrameInertial:
		return "inertial"
	case FrameBodyFixed:
		return "body-fixed"
	}
	return "unknown frame"
}

// JulianDate returns the Julian date of the provided time.
// All ephemeris computations happen in UTC.
func JulianDate(dt time.Time) float64 {
	return julian.TimeToJD(dt.UTC())
}

// GST returns the Greenwich mean sidereal time, in radians, at the provided time.
func GST(dt time.Time) float64 {
	return sidereal.Mean(JulianDate(dt)).Angle().Rad()
}

// InertialToBodyFixed rotates an Earth-centered inertial vector into the
// body-fixed rotating frame at the provided epoch. Pure and deterministic for
// a given epoch.
func InertialToBodyFixed(R []float64, dt time.Time) []float64 {
	return ECI2ECEF(R, GST(dt))
}

// BodyFixedToInertial is the inverse of InertialToBodyFixed.
func BodyFixedToInertial(R []float64, dt time.Time) []float64 {
	return ECEF2ECI(R, GST(dt))
}
