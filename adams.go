package astrokit

import "math"

// ABM4 is the 4th order Adams-Bashforth-Moulton predictor-corrector in PECE
// mode. It bootstraps its multistep history with RK7(8) steps and therefore
// only supports fixed step sizes: changing h between calls resets the
// history. The error estimate is the Milne device on the predictor-corrector
// difference.
type ABM4 struct {
	starter RK78
	h       float64
	fs      [][]float64 // f(t_n-3) .. f(t_n)
}

// NewABM4 returns an Adams-Bashforth-Moulton integrator.
func NewABM4() *ABM4 { return &ABM4{} }

// Order implements the Integrator interface.
func (*ABM4) Order() int { return 4 }

// Step implements the Integrator interface.
func (abm *ABM4) Step(f RHS, t float64, y []float64, h float64) ([]float64, float64) {
	if h != abm.h {
		abm.h = h
		abm.fs = abm.fs[:0]
	}
	if len(abm.fs) < 4 {
		// Record the derivative at the step origin; until four samples exist
		// the multistep formula cannot run, so delegate to the starter.
		abm.fs = append(abm.fs, f(t, y))
		if len(abm.fs) < 4 {
			return abm.starter.Step(f, t, y, h)
		}
	}
	n := len(y)
	fn := abm.fs[3]
	fn1 := abm.fs[2]
	fn2 := abm.fs[1]
	fn3 := abm.fs[0]
	// Predictor (Adams-Bashforth)
	yp := make([]float64, n)
	for i := 0; i < n; i++ {
		yp[i] = y[i] + h/24*(55*fn[i]-59*fn1[i]+37*fn2[i]-9*fn3[i])
	}
	fp := f(t+h, yp)
	// Corrector (Adams-Moulton)
	yNext := make([]float64, n)
	errEst := 0.0
	for i := 0; i < n; i++ {
		yNext[i] = y[i] + h/24*(9*fp[i]+19*fn[i]-5*fn1[i]+fn2[i])
		// Milne: LTE ≈ 19/270 of the predictor-corrector spread.
		if ε := 19. / 270 * math.Abs(yNext[i]-yp[i]); ε > errEst {
			errEst = ε
		}
	}
	copy(abm.fs, abm.fs[1:])
	abm.fs[3] = f(t+h, yNext)
	return yNext, errEst
}
