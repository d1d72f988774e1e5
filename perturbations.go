package astrokit

import (
	"math"
	"time"
)

// DragConfig configures atmospheric drag on a given spacecraft.
type DragConfig struct {
	Cd    float64 // drag coefficient (usually ~2.2)
	Area  float64 // cross section, m^2
	Mass  float64 // kg
	Model Atmosphere
}

// SRPConfig configures solar radiation pressure on a given spacecraft.
type SRPConfig struct {
	Cr   float64 // reflectivity coefficient (1: absorbing; 2: mirror)
	Area float64 // illuminated area, m^2
	Mass float64 // kg
}

// Perturbations defines the perturbations to account for in the force model.
// The zero value is pure two-body motion.
type Perturbations struct {
	J2, J3, J4, J6 bool         // Zonal harmonics (each requires the lower degrees defined on the body)
	Drag           *DragConfig  // nil disables drag
	SRP            *SRPConfig   // nil disables solar radiation pressure
	ThirdBodies    []CelestialObject
}

// ForceModel evaluates accelerations around a central body. It holds no
// mutable state and a single instance may be shared by concurrent
// propagations.
type ForceModel struct {
	Body  CelestialObject
	Perts Perturbations
}

// Accel returns the total acceleration, in km/s^2, at the given epoch for
// a spacecraft at position R (km) with velocity V (km/s), both in the
// body-centered inertial frame.
func (fm ForceModel) Accel(dt time.Time, R, V []float64) []float64 {
	r := norm(R)
	accel := make([]float64, 3)
	// Central body
	mFactor := -fm.Body.μ / math.Pow(r, 3)
	for i := 0; i < 3; i++ {
		accel[i] = mFactor * R[i]
	}
	fm.addZonals(R, r, accel)
	if fm.Perts.Drag != nil {
		fm.addDrag(R, V, r, accel)
	}
	if fm.Perts.SRP != nil {
		fm.addSRP(dt, R, accel)
	}
	for _, body := range fm.Perts.ThirdBodies {
		fm.addThirdBody(dt, body, R, accel)
	}
	return accel
}

// zonal holds a Legendre polynomial Pn and its derivative, evaluated at u=z/r.
type zonal struct {
	n      int
	pn, dn func(u float64) float64
}

var zonalTerms = []zonal{
	{2,
		func(u float64) float64 { return (3*u*u - 1) / 2 },
		func(u float64) float64 { return 3 * u }},
	{3,
		func(u float64) float64 { return (5*u*u*u - 3*u) / 2 },
		func(u float64) float64 { return (15*u*u - 3) / 2 }},
	{4,
		func(u float64) float64 { return (35*math.Pow(u, 4) - 30*u*u + 3) / 8 },
		func(u float64) float64 { return (35*u*u*u - 15*u) / 2 }},
	{6,
		func(u float64) float64 {
			return (231*math.Pow(u, 6) - 315*math.Pow(u, 4) + 105*u*u - 5) / 16
		},
		func(u float64) float64 {
			return (693*math.Pow(u, 5) - 630*u*u*u + 105*u) / 8
		}},
}

// addZonals accumulates the enabled zonal harmonic accelerations. The
// gradient of the zonal potential in Cartesian coordinates is
//
//	a_i = (μ Jn Re^n / r^(n+3)) * [((n+1) Pn(u) + u Pn'(u)) x_i - Pn'(u) r δ_i3]
//
// with u = z/r, which reduces to the familiar explicit J2 and J3 expressions.
func (fm ForceModel) addZonals(R []float64, r float64, accel []float64) {
	enabled := [...]bool{fm.Perts.J2, fm.Perts.J3, fm.Perts.J4, fm.Perts.J6}
	u := R[2] / r
	for t, term := range zonalTerms {
		if !enabled[t] {
			continue
		}
		Jn := fm.Body.J(uint8(term.n))
		if Jn == 0 {
			continue
		}
		pn := term.pn(u)
		dn := term.dn(u)
		factor := fm.Body.μ * Jn * math.Pow(fm.Body.Radius, float64(term.n)) / math.Pow(r, float64(term.n)+3)
		common := (float64(term.n)+1)*pn + u*dn
		accel[0] += factor * common * R[0]
		accel[1] += factor * common * R[1]
		accel[2] += factor * (common*R[2] - dn*r)
	}
}

// addDrag accumulates the atmospheric drag acceleration, computed against
// the velocity relative to the co-rotating atmosphere.
func (fm ForceModel) addDrag(R, V []float64, r float64, accel []float64) {
	cfg := fm.Perts.Drag
	ρ := cfg.Model.Density(r - fm.Body.Radius)
	if ρ == 0 {
		return
	}
	// vrel = V - ω × R with ω along +Z of the body-fixed spin axis.
	ω := fm.Body.RotRate
	vrel := []float64{V[0] + ω*R[1], V[1] - ω*R[0], V[2]}
	vNorm := norm(vrel)
	// The factor 500 converts (kg/m^3)*(m^2/kg)*(km/s)^2 into km/s^2,
	// including the 1/2 of the drag equation.
	factor := -500 * ρ * (cfg.Cd * cfg.Area / cfg.Mass) * vNorm
	for i := 0; i < 3; i++ {
		accel[i] += factor * vrel[i]
	}
}

// addSRP accumulates the solar radiation pressure acceleration, scaled by
// the conical shadow factor.
func (fm ForceModel) addSRP(dt time.Time, R []float64, accel []float64) {
	cfg := fm.Perts.SRP
	ν := ShadowFactor(dt, R, fm.Body)
	if ν == 0 {
		return
	}
	rSun := SunPositionECI(dt)
	sun2Sat := make([]float64, 3)
	for i := 0; i < 3; i++ {
		sun2Sat[i] = R[i] - rSun[i]
	}
	dir := unit(sun2Sat)
	// SolarFlux is in N/m^2; the division by 1000 yields km/s^2.
	factor := ν * SolarFlux * cfg.Cr * cfg.Area / cfg.Mass / 1000
	for i := 0; i < 3; i++ {
		accel[i] += factor * dir[i]
	}
}

// addThirdBody accumulates the differential gravitational attraction of a
// third body (direct term minus the indirect term on the central body).
func (fm ForceModel) addThirdBody(dt time.Time, body CelestialObject, R, accel []float64) {
	r3 := body.PositionECI(dt)
	sat2Body := make([]float64, 3)
	for i := 0; i < 3; i++ {
		sat2Body[i] = r3[i] - R[i]
	}
	d3 := math.Pow(norm(sat2Body), 3)
	b3 := math.Pow(norm(r3), 3)
	for i := 0; i < 3; i++ {
		accel[i] += body.μ * (sat2Body[i]/d3 - r3[i]/b3)
	}
}
