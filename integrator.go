package astrokit

import "math"

// RHS is the right-hand side of a first order ODE system y' = f(t, y).
// Implementations must not retain or mutate y.
type RHS func(t float64, y []float64) []float64

// Integrator advances an ODE system by one step of size h and reports an
// estimate of the local truncation error (zero for fixed-order methods
// without an embedded pair).
type Integrator interface {
	Step(f RHS, t float64, y []float64, h float64) (yNext []float64, errEst float64)
	Order() int
}

// Fehlberg 7(8) coefficients, from the original 13-stage tableau. The 7th
// order solution is only used through the embedded error estimate.
var (
	rk78c = [13]float64{0, 2. / 27, 1. / 9, 1. / 6, 5. / 12, 1. / 2, 5. / 6, 1. / 6, 2. / 3, 1. / 3, 1, 0, 1}

	rk78a = [13][12]float64{
		{},
		{2. / 27},
		{1. / 36, 1. / 12},
		{1. / 24, 0, 1. / 8},
		{5. / 12, 0, -25. / 16, 25. / 16},
		{1. / 20, 0, 0, 1. / 4, 1. / 5},
		{-25. / 108, 0, 0, 125. / 108, -65. / 27, 125. / 54},
		{31. / 300, 0, 0, 0, 61. / 225, -2. / 9, 13. / 900},
		{2, 0, 0, -53. / 6, 704. / 45, -107. / 9, 67. / 90, 3},
		{-91. / 108, 0, 0, 23. / 108, -976. / 135, 311. / 54, -19. / 60, 17. / 6, -1. / 12},
		{2383. / 4100, 0, 0, -341. / 164, 4496. / 1025, -301. / 82, 2133. / 4100, 45. / 82, 45. / 164, 18. / 41},
		{3. / 205, 0, 0, 0, 0, -6. / 41, -3. / 205, -3. / 41, 3. / 41, 6. / 41, 0},
		{-1777. / 4100, 0, 0, -341. / 164, 4496. / 1025, -289. / 82, 2193. / 4100, 51. / 82, 33. / 164, 12. / 41, 0, 1},
	}

	// 8th order weights (stages 1-5 and 11 have zero weight).
	rk78b = [13]float64{0, 0, 0, 0, 0, 34. / 105, 9. / 35, 9. / 35, 9. / 280, 9. / 280, 0, 41. / 840, 41. / 840}
)

// RK78 is the Runge-Kutta-Fehlberg 7(8) embedded pair. It is stateless and
// safe for concurrent use.
type RK78 struct{}

// NewRK78 returns an RK7(8) integrator.
func NewRK78() RK78 { return RK78{} }

// Order implements the Integrator interface.
func (RK78) Order() int { return 8 }

// Step implements the Integrator interface. The returned state is the 8th
// order solution; the error estimate is the max norm of the difference with
// the embedded 7th order solution.
func (RK78) Step(f RHS, t float64, y []float64, h float64) ([]float64, float64) {
	n := len(y)
	var k [13][]float64
	ytmp := make([]float64, n)
	for s := 0; s < 13; s++ {
		for i := 0; i < n; i++ {
			ytmp[i] = y[i]
			for j := 0; j < s; j++ {
				if rk78a[s][j] != 0 {
					ytmp[i] += h * rk78a[s][j] * k[j][i]
				}
			}
		}
		k[s] = f(t+rk78c[s]*h, ytmp)
	}
	yNext := make([]float64, n)
	errEst := 0.0
	for i := 0; i < n; i++ {
		yNext[i] = y[i]
		for s := 0; s < 13; s++ {
			if rk78b[s] != 0 {
				yNext[i] += h * rk78b[s] * k[s][i]
			}
		}
		// Fehlberg's estimate: the 7th and 8th order solutions differ by
		// (41/840)*(k1 + k11 - k12 - k13)*h.
		εi := math.Abs(h * (41. / 840) * (k[0][i] + k[10][i] - k[11][i] - k[12][i]))
		if εi > errEst {
			errEst = εi
		}
	}
	return yNext, errEst
}
