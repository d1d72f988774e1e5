package astrokit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/solar"
)

const (
	// AU is one astronomical unit in kilometers.
	AU = 1.49597870700e8
	// EarthRotationRate is the average Earth rotation rate in radians per second.
	EarthRotationRate = 7.2921158553e-5
	// SolarFlux is the solar radiation pressure at one AU, in N/m^2 (W/m^2 over c).
	SolarFlux = 1361.0 / 299792458.0
)

// CelestialObject defines a celestial object. It is an immutable value: the
// force model receives one at construction, never a module-level mutable.
type CelestialObject struct {
	Name    string
	Radius  float64 // mean equatorial radius, km
	a       float64 // semi-major axis of the object's own heliocentric orbit, km
	μ       float64 // gravitational parameter, km^3/s^2
	SOI     float64 // sphere of influence with respect to the Sun, km
	RotRate float64 // spin rate, rad/s
	J2      float64
	J3      float64
	J4      float64
	J6      float64
}

// GM returns μ (which is unexported because it's a lowercase letter).
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the zonal harmonic J_n coefficient for the provided degree.
// Degrees without a stored coefficient return 0.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	case 3:
		return c.J3
	case 4:
		return c.J4
	case 6:
		return c.J6
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c *CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.a == b.a && c.μ == b.μ && c.SOI == b.SOI && c.J2 == b.J2
}

// CelestialObjectFromString returns the object from its name.
func CelestialObjectFromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "sun":
		return Sun, nil
	case "earth":
		return Earth, nil
	case "moon":
		return Moon, nil
	case "venus":
		return Venus, nil
	case "mars":
		return Mars, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined celestial object '%s'", name)
	}
}

// SunPositionECI returns the geocentric position of the Sun, in km, in the
// Earth-centered inertial equatorial frame, from the low-precision analytical
// solar ephemeris. Good to roughly 0.01 degrees, which is plenty for shadow
// geometry and radiation pressure.
func SunPositionECI(dt time.Time) []float64 {
	jde := JulianDate(dt)
	α, δ := solar.ApparentEquatorial(jde)
	sδ, cδ := math.Sincos(δ.Rad())
	sα, cα := math.Sincos(α.Rad())
	r := solar.Radius(base.J2000Century(jde)) * AU
	return []float64{r * cδ * cα, r * cδ * sα, r * sδ}
}

// MoonPositionECI returns the geocentric position of the Moon, in km, in the
// Earth-centered inertial equatorial frame.
func MoonPositionECI(dt time.Time) []float64 {
	jde := JulianDate(dt)
	λ, β, Δ := moonposition.Position(jde)
	ε := nutation.MeanObliquity(jde).Rad()
	sε, cε := math.Sincos(ε)
	sβ, cβ := math.Sincos(β.Rad())
	sλ, cλ := math.Sincos(λ.Rad())
	return []float64{
		Δ * cβ * cλ,
		Δ * (cβ*sλ*cε - sβ*sε),
		Δ * (cβ*sλ*sε + sβ*cε),
	}
}

// PositionECI returns the geocentric position of a perturbing body at the
// given epoch. Only the Sun and the Moon have analytical geocentric
// ephemerides; anything else panics, which is caught at config validation.
func (c CelestialObject) PositionECI(dt time.Time) []float64 {
	switch c.Name {
	case "Sun":
		return SunPositionECI(dt)
	case "Moon":
		return MoonPositionECI(dt)
	default:
		panic(fmt.Errorf("no geocentric ephemeris for %s", c.Name))
	}
}

/* Definitions */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 695700, -1, 1.32712440017987e11, -1, 2.865e-6, 0, 0, 0, 0}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378.1363, 149598023, 3.98600433e5, 924645.0, EarthRotationRate, 1082.6269e-6, -2.5324e-6, -1.6204e-6, 0.5407e-6}

// Moon is the main third-body perturber of Earth orbiters.
var Moon = CelestialObject{"Moon", 1737.4, 384400, 4.9028e3, 66100, 2.6617e-6, 202.7e-6, 0, 0, 0}

// Venus is poisonous.
var Venus = CelestialObject{"Venus", 6051.8, 108208601, 3.24858599e5, 0.616e6, -2.99e-7, 0.000027, 0, 0, 0}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 3396.19, 227939282.5616, 4.28283100e4, 576000, 7.088e-5, 1964e-6, 36e-6, -18e-6, 0}
