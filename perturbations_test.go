package astrokit

import (
	"context"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestZonalJ2MatchesClosedForm(t *testing.T) {
	fm := ForceModel{Body: Earth, Perts: Perturbations{J2: true}}
	R := []float64{-2436.45, -2436.45, 6891.037}
	V := []float64{5.088611, -5.088611, 0}
	dt := time.Date(2017, 3, 15, 12, 0, 0, 0, time.UTC)
	accel := fm.Accel(dt, R, V)

	// Remove the central body term to isolate the J2 contribution.
	r := norm(R)
	for i := 0; i < 3; i++ {
		accel[i] += Earth.μ / math.Pow(r, 3) * R[i]
	}
	// Vallado's explicit Cartesian J2 acceleration.
	z2 := R[2] * R[2]
	factor := -3 * Earth.J(2) * Earth.μ * math.Pow(Earth.Radius, 2) / (2 * math.Pow(r, 5))
	exp := []float64{
		factor * R[0] * (1 - 5*z2/(r*r)),
		factor * R[1] * (1 - 5*z2/(r*r)),
		factor * R[2] * (3 - 5*z2/(r*r)),
	}
	for i := 0; i < 3; i++ {
		if !scalar.EqualWithinAbs(accel[i], exp[i], 1e-12) {
			t.Fatalf("J2 accel[%d]: got %e, expected %e", i, accel[i], exp[i])
		}
	}
}

// meanRAAN averages the osculating RAAN, in degrees, over one orbital
// period of samples starting at from. Averaging over a full period removes
// the short-period J2 oscillation and leaves the mean element.
func meanRAAN(t *testing.T, eph *Ephemeris, from time.Time, period time.Duration) float64 {
	t.Helper()
	const samples = 128
	step := period / samples
	var sum float64
	for k := 0; k < samples; k++ {
		st, err := eph.At(from.Add(time.Duration(k) * step))
		if err != nil {
			t.Fatal(err)
		}
		_, _, _, Ω, _, _, _, _, _ := st.Orbit(Earth).Elements()
		sum += Rad2deg(Ω)
	}
	return sum / samples
}

func TestJ2NodalPrecession(t *testing.T) {
	// A sun-synchronous orbit precesses its node by +0.9856 deg/day. The
	// mean rate over 30 days must match the secular theory to 0.1%.
	a := Earth.Radius + 800
	i := 98.6
	o, err := NewOrbitFromOE(a, 0.001, i, 45, 0, 0, Earth)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	span := 30 * 24 * time.Hour
	prop := NewPropagator(o, ForceModel{Body: Earth, Perts: Perturbations{J2: true}}, PropagationConfig{
		Start:     start,
		End:       start.Add(span),
		Tolerance: 1e-10,
	})
	res, err := prop.Propagate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	period := o.Period()
	Ωfirst := meanRAAN(t, res.Ephemeris, start, period)
	Ωlast := meanRAAN(t, res.Ephemeris, start.Add(span).Add(-period), period)
	// The averaging windows are centered period/2 after their start epochs,
	// so the mean elements are span-period apart.
	days := (span - period).Hours() / 24
	rate := (Ωlast - Ωfirst) / days

	p := o.SemiParameter()
	n := o.MeanMotion()
	analytic := -1.5 * n * Earth.J(2) * math.Pow(Earth.Radius/p, 2) * math.Cos(Deg2rad(i)) * 86400 / deg2rad
	if !scalar.EqualWithinAbs(rate, analytic, math.Abs(analytic)*1e-3) {
		t.Fatalf("mean nodal rate %f deg/day, secular theory gives %f", rate, analytic)
	}
	if !scalar.EqualWithinAbs(rate, 0.9856, 0.9856*1e-3) {
		t.Fatalf("sun-synchronous rate %f deg/day, expected 0.9856 within 0.1%%", rate)
	}
}

func TestDragDecaysOrbit(t *testing.T) {
	o, err := NewOrbitFromOE(Earth.Radius+300, 0.001, 51.6, 0, 0, 0, Earth)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	prop := NewPropagator(o, ForceModel{Body: Earth, Perts: Perturbations{
		Drag: &DragConfig{Cd: 2.2, Area: 10, Mass: 100, Model: NewExponentialAtmosphere()},
	}}, PropagationConfig{
		Start: start,
		End:   start.Add(3 * o.Period()),
	})
	res, err := prop.Propagate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first := res.Ephemeris.States()[0]
	last, _ := res.Ephemeris.Last()
	ξ0 := specificEnergy([]float64{first.R[0], first.R[1], first.R[2], first.V[0], first.V[1], first.V[2]})
	ξ1 := specificEnergy([]float64{last.R[0], last.R[1], last.R[2], last.V[0], last.V[1], last.V[2]})
	if ξ1 >= ξ0 {
		t.Fatalf("drag did not remove energy: ξ0=%f ξ1=%f", ξ0, ξ1)
	}
}

func TestShadowFactorExtremes(t *testing.T) {
	dt := time.Date(2017, 6, 21, 12, 0, 0, 0, time.UTC)
	sunDir := unit(SunPositionECI(dt))
	r := Earth.Radius + 500
	dayside := []float64{sunDir[0] * r, sunDir[1] * r, sunDir[2] * r}
	nightside := []float64{-dayside[0], -dayside[1], -dayside[2]}
	if ν := ShadowFactor(dt, dayside, Earth); ν != 1 {
		t.Fatalf("sun side should be fully lit, got ν=%f", ν)
	}
	if ν := ShadowFactor(dt, nightside, Earth); ν != 0 {
		t.Fatalf("anti-sun side at LEO should be in umbra, got ν=%f", ν)
	}
}

func TestSRPPushesAwayFromSun(t *testing.T) {
	dt := time.Date(2017, 6, 21, 12, 0, 0, 0, time.UTC)
	fm := ForceModel{Body: Earth, Perts: Perturbations{
		SRP: &SRPConfig{Cr: 1.8, Area: 20, Mass: 100},
	}}
	sunDir := unit(SunPositionECI(dt))
	r := Earth.Radius + 700
	R := []float64{sunDir[0] * r, sunDir[1] * r, sunDir[2] * r}
	V := []float64{0, 7.5, 0}
	accel := fm.Accel(dt, R, V)
	// Remove the central body term; what remains is SRP only.
	for i := 0; i < 3; i++ {
		accel[i] += Earth.μ / math.Pow(r, 3) * R[i]
	}
	// Away from the Sun means anti-sunward for a dayside satellite.
	if proj := dot(accel, sunDir); proj >= 0 {
		t.Fatalf("SRP should push away from the Sun, projection %e", proj)
	}
	want := SolarFlux * 1.8 * 20 / 100 / 1000
	if mag := norm(accel); !scalar.EqualWithinAbs(mag, want, want*1e-3) {
		t.Fatalf("SRP magnitude %e km/s^2, expected %e", mag, want)
	}
}

func TestThirdBodyMagnitude(t *testing.T) {
	dt := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	fm := ForceModel{Body: Earth, Perts: Perturbations{ThirdBodies: []CelestialObject{Sun, Moon}}}
	R := []float64{7000, 0, 0}
	V := []float64{0, 7.5, 0}
	accel := fm.Accel(dt, R, V)
	for i := 0; i < 3; i++ {
		accel[i] += Earth.μ / math.Pow(7000, 3) * R[i]
	}
	mag := norm(accel)
	// Lunisolar differential acceleration at LEO is of order 1e-9 km/s^2.
	if mag < 1e-11 || mag > 1e-7 {
		t.Fatalf("third body magnitude %e km/s^2 out of expected range", mag)
	}
}

func TestExponentialAtmosphere(t *testing.T) {
	atm := NewExponentialAtmosphere()
	if ρ := atm.Density(0); !scalar.EqualWithinAbs(ρ, 1.225, 1e-6) {
		t.Fatalf("sea level density %f", ρ)
	}
	prev := atm.Density(100)
	for _, alt := range []float64{200, 400, 600, 800, 1000} {
		ρ := atm.Density(alt)
		if ρ >= prev {
			t.Fatalf("density did not decrease at %f km", alt)
		}
		prev = ρ
	}
	if ρ := atm.Density(-5); ρ != 1.225 {
		t.Fatalf("negative altitudes should clamp to sea level, got %f", ρ)
	}
}
