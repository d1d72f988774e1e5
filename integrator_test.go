package astrokit

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

// twoBody is the unperturbed equation of motion around Earth.
func twoBody(t float64, y []float64) []float64 {
	r := norm(y[0:3])
	f := -Earth.μ / (r * r * r)
	return []float64{y[3], y[4], y[5], f * y[0], f * y[1], f * y[2]}
}

func specificEnergy(y []float64) float64 {
	v := norm(y[3:6])
	return v*v/2 - Earth.μ/norm(y[0:3])
}

func TestRK78EnergyConservation(t *testing.T) {
	o, err := NewOrbitFromOE(Earth.Radius+500, 0.01, 51.6, 10, 20, 30, Earth)
	if err != nil {
		t.Fatal(err)
	}
	R, V := o.RV()
	y := []float64{R[0], R[1], R[2], V[0], V[1], V[2]}
	ξ0 := specificEnergy(y)
	integ := NewRK78()
	h := 30.0
	duration := 10 * o.Period().Seconds()
	for elapsed := 0.0; elapsed < duration; elapsed += h {
		y, _ = integ.Step(twoBody, elapsed, y, h)
	}
	ξ1 := specificEnergy(y)
	if rel := math.Abs((ξ1 - ξ0) / ξ0); rel > 1e-6 {
		t.Fatalf("energy drift %.3e over ten periods", rel)
	}
}

func TestRK78OnePeriodReturn(t *testing.T) {
	o, err := NewOrbitFromOE(Earth.Radius+500, 0.01, 51.6, 10, 20, 30, Earth)
	if err != nil {
		t.Fatal(err)
	}
	R0, V0 := o.RV()
	y := []float64{R0[0], R0[1], R0[2], V0[0], V0[1], V0[2]}
	integ := NewRK78()
	period := o.Period().Seconds()
	// Land exactly on the period with an integer number of steps.
	n := 1000
	h := period / float64(n)
	for i := 0; i < n; i++ {
		y, _ = integ.Step(twoBody, float64(i)*h, y, h)
	}
	for i := 0; i < 3; i++ {
		if !scalar.EqualWithinAbs(y[i], R0[i], 1e-3) {
			t.Fatalf("R[%d] off by %f km after one period", i, math.Abs(y[i]-R0[i]))
		}
	}
}

func TestRK78Deterministic(t *testing.T) {
	y0 := []float64{7000, 0, 0, 0, 7.5, 0}
	integ := NewRK78()
	a, errA := integ.Step(twoBody, 0, y0, 60)
	b, errB := integ.Step(twoBody, 0, y0, 60)
	if errA != errB {
		t.Fatalf("error estimates differ: %e vs %e", errA, errB)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs between identical steps", i)
		}
	}
}

func TestRK78ErrorEstimateShrinksWithStep(t *testing.T) {
	y0 := []float64{7000, 0, 0, 0, 7.5, 0}
	integ := NewRK78()
	_, errBig := integ.Step(twoBody, 0, y0, 120)
	_, errSmall := integ.Step(twoBody, 0, y0, 30)
	if errSmall >= errBig {
		t.Fatalf("error estimate did not shrink: h=30 gives %e, h=120 gives %e", errSmall, errBig)
	}
}

func TestABM4TracksRK78(t *testing.T) {
	o, err := NewOrbitFromOE(Earth.Radius+600, 0.002, 45, 0, 0, 0, Earth)
	if err != nil {
		t.Fatal(err)
	}
	R, V := o.RV()
	y0 := []float64{R[0], R[1], R[2], V[0], V[1], V[2]}
	h := 10.0
	steps := 360 // one hour

	yRK := append([]float64{}, y0...)
	rk := NewRK78()
	for i := 0; i < steps; i++ {
		yRK, _ = rk.Step(twoBody, float64(i)*h, yRK, h)
	}

	yABM := append([]float64{}, y0...)
	abm := NewABM4()
	for i := 0; i < steps; i++ {
		yABM, _ = abm.Step(twoBody, float64(i)*h, yABM, h)
	}

	for i := 0; i < 3; i++ {
		if !scalar.EqualWithinAbs(yRK[i], yABM[i], 1e-2) {
			t.Fatalf("position component %d diverged: RK78 %f vs ABM4 %f", i, yRK[i], yABM[i])
		}
	}
}
