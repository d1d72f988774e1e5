package astrokit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WGS-72 constants of the SGP4/SDP4 models. Distances are in Earth radii
// and angular rates in radians per minute unless noted.
const (
	sgpER        = 6378.135 // km
	sgpXKE       = 7.43669161e-2
	sgpCK2       = 5.413080e-4 // J2/2
	sgpCK4       = 0.62098875e-6
	sgpJ3        = -0.253881e-5
	sgpQOMS2T    = 1.88027916e-9
	sgpS         = 1.01222928
	sgpTwoThirds = 2.0 / 3.0

	// Lunisolar secular constants (Hujsak 1979).
	zns    = 1.19459e-5
	zes    = 0.01675
	znl    = 1.5835218e-4
	zel    = 0.05490
	c1ss   = 2.9864797e-6
	c1l    = 4.7968065e-7
	zcosgs = 0.1945905
	zsings = -0.98088458
	zcosis = 0.91744867
	zsinis = 0.39785416
)

// DeepSpacePeriodMin is the orbital period, in minutes, at and above which
// the deep-space corrections replace the near-Earth model.
const DeepSpacePeriodMin = 225.0

// SGP4 propagates a two-line element set analytically. A value is immutable
// after construction and safe for concurrent use.
type SGP4 struct {
	tle   TLE
	epoch time.Time
	deep  bool

	// Radian elements at epoch.
	xno    float64 // mean motion, rad/min
	xincl  float64
	eo     float64
	omegao float64
	xnodeo float64
	xmo    float64
	bstar  float64

	// Recovered Brouwer elements and shared coefficients.
	xnodp, aodp            float64
	cosio, sinio           float64
	x3thm1, x1mth2, x7thm1 float64
	c1, c4, c5             float64
	d2, d3, d4             float64
	xmdot, omgdot, xnodot  float64
	omgcof, xmcof, xnodcf  float64
	t2cof, t3cof, t4cof    float64
	t5cof                  float64
	xlcof, aycof           float64
	delmo, sinmo, eta      float64
	simple                 bool

	// Deep-space secular rates (lunisolar), rad/min and 1/min.
	sse, ssi, ssl, ssg, ssh float64
}

// NewSGP4 initializes the analytical model from a parsed element set. The
// near-Earth model is used below a 225 minute period, the deep-space
// corrections at or above it. Element sets that cannot seed a stable model
// fail with ErrInvalidElementSet.
func NewSGP4(tle *TLE) (*SGP4, error) {
	if tle == nil {
		return nil, fmt.Errorf("nil element set: %w", ErrInvalidElementSet)
	}
	if tle.MeanMotion <= 0 {
		return nil, fmt.Errorf("mean motion %f must be positive: %w", tle.MeanMotion, ErrInvalidElementSet)
	}
	if tle.Eccentricity < 0 || tle.Eccentricity >= 1 {
		return nil, fmt.Errorf("eccentricity %f out of range [0,1): %w", tle.Eccentricity, ErrInvalidElementSet)
	}
	if tle.Inclination < 0 || tle.Inclination > 180 {
		return nil, fmt.Errorf("inclination %f out of range [0,180]: %w", tle.Inclination, ErrInvalidElementSet)
	}
	s := &SGP4{
		tle:    *tle,
		epoch:  tle.Epoch(),
		xno:    tle.MeanMotion * 2 * math.Pi / 1440,
		xincl:  Deg2rad(tle.Inclination),
		eo:     tle.Eccentricity,
		omegao: Deg2rad(tle.ArgPerigee),
		xnodeo: Deg2rad(tle.RAAN),
		xmo:    Deg2rad(tle.MeanAnomaly),
		bstar:  tle.Bstar,
		deep:   tle.PeriodMinutes() >= DeepSpacePeriodMin,
	}

	// Recover original mean motion and semimajor axis from the input
	// elements (they are Kozai mean values).
	a1 := math.Pow(sgpXKE/s.xno, sgpTwoThirds)
	s.cosio = math.Cos(s.xincl)
	theta2 := s.cosio * s.cosio
	s.x3thm1 = 3*theta2 - 1
	eosq := s.eo * s.eo
	betao2 := 1 - eosq
	betao := math.Sqrt(betao2)
	del1 := 1.5 * sgpCK2 * s.x3thm1 / (a1 * a1 * betao * betao2)
	ao := a1 * (1 - del1*(0.5*sgpTwoThirds+del1*(1+134.0/81.0*del1)))
	delo := 1.5 * sgpCK2 * s.x3thm1 / (ao * ao * betao * betao2)
	s.xnodp = s.xno / (1 + delo)
	s.aodp = ao / (1 - delo)

	perigee := (s.aodp*(1-s.eo) - 1) * sgpER
	if perigee < 0 {
		return nil, fmt.Errorf("perigee %f km below the surface: %w", perigee, ErrInvalidElementSet)
	}
	// Below a 220 km perigee the model is truncated to linear variation in
	// sqrt(a) and quadratic variation in mean anomaly.
	s.simple = perigee < 220

	// The S and QOMS2T parameters are altered for perigees below 156 km.
	s4 := sgpS
	qoms24 := sgpQOMS2T
	if perigee < 156 {
		s4 = perigee - 78
		if perigee <= 98 {
			s4 = 20
		}
		qoms24 = math.Pow((120-s4)/sgpER, 4)
		s4 = s4/sgpER + 1
	}

	pinvsq := 1 / (s.aodp * s.aodp * betao2 * betao2)
	tsi := 1 / (s.aodp - s4)
	s.eta = s.aodp * s.eo * tsi
	etasq := s.eta * s.eta
	eeta := s.eo * s.eta
	psisq := math.Abs(1 - etasq)
	coef := qoms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)
	c2 := coef1 * s.xnodp * (s.aodp*(1+1.5*etasq+eeta*(4+etasq)) +
		0.75*sgpCK2*tsi/psisq*s.x3thm1*(8+3*etasq*(8+etasq)))
	s.c1 = s.bstar * c2
	s.sinio = math.Sin(s.xincl)
	a3ovk2 := -sgpJ3 / sgpCK2
	s.x1mth2 = 1 - theta2
	s.c4 = 2 * s.xnodp * coef1 * s.aodp * betao2 *
		(s.eta*(2+0.5*etasq) + s.eo*(0.5+2*etasq) -
			2*sgpCK2*tsi/(s.aodp*psisq)*
				(-3*s.x3thm1*(1-2*eeta+etasq*(1.5-0.5*eeta))+
					0.75*s.x1mth2*(2*etasq-eeta*(1+etasq))*math.Cos(2*s.omegao)))
	s.c5 = 2 * coef1 * s.aodp * betao2 * (1 + 2.75*(etasq+eeta) + eeta*etasq)

	theta4 := theta2 * theta2
	temp1 := 3 * sgpCK2 * pinvsq * s.xnodp
	temp2 := temp1 * sgpCK2 * pinvsq
	temp3 := 1.25 * sgpCK4 * pinvsq * pinvsq * s.xnodp
	s.xmdot = s.xnodp + 0.5*temp1*betao*s.x3thm1 +
		0.0625*temp2*betao*(13-78*theta2+137*theta4)
	x1m5th := 1 - 5*theta2
	s.omgdot = -0.5*temp1*x1m5th + 0.0625*temp2*(7-114*theta2+395*theta4) +
		temp3*(3-36*theta2+49*theta4)
	xhdot1 := -temp1 * s.cosio
	s.xnodot = xhdot1 + (0.5*temp2*(4-19*theta2)+2*temp3*(3-7*theta2))*s.cosio
	s.xnodcf = 3.5 * betao2 * xhdot1 * s.c1
	s.t2cof = 1.5 * s.c1
	s.xlcof = 0.125 * a3ovk2 * s.sinio * (3 + 5*s.cosio) / (1 + s.cosio)
	s.aycof = 0.25 * a3ovk2 * s.sinio
	s.x7thm1 = 7*theta2 - 1

	if s.deep {
		s.initDeepSpace(eosq, betao, betao2)
		return s, nil
	}

	c3 := 0.0
	if s.eo > 1e-4 {
		c3 = coef * tsi * a3ovk2 * s.xnodp * s.sinio / s.eo
	}
	s.omgcof = s.bstar * c3 * math.Cos(s.omegao)
	s.xmcof = 0
	if s.eo > 1e-4 {
		s.xmcof = -sgpTwoThirds * coef * s.bstar / eeta
	}
	s.delmo = math.Pow(1+s.eta*math.Cos(s.xmo), 3)
	s.sinmo = math.Sin(s.xmo)

	if !s.simple {
		c1sq := s.c1 * s.c1
		s.d2 = 4 * s.aodp * tsi * c1sq
		temp := s.d2 * tsi * s.c1 / 3
		s.d3 = (17*s.aodp + s4) * temp
		s.d4 = 0.5 * temp * s.aodp * tsi * (221*s.aodp + 31*s4) * s.c1
		s.t3cof = s.d2 + 2*c1sq
		s.t4cof = 0.25 * (3*s.d3 + s.c1*(12*s.d2+10*c1sq))
		s.t5cof = 0.2 * (3*s.d4 + 12*s.c1*s.d3 + 6*s.d2*s.d2 + 15*c1sq*(2*s.d2+c1sq))
	}
	return s, nil
}

// Deep returns whether the deep-space corrections are active.
func (s *SGP4) Deep() bool { return s.deep }

// Epoch returns the element set epoch.
func (s *SGP4) Epoch() time.Time { return s.epoch }

// lunisolarGeom is the geometry of one perturbing body as seen in the
// orbital plane frame.
type lunisolarGeom struct {
	zcosg, zsing float64
	zcosi, zsini float64
	zcosh, zsinh float64
	cc, zn, ze   float64
}

// initDeepSpace computes the lunisolar secular rates sse..ssh (Hujsak's
// condensed model). Resonance terms for synchronous and half-day orbits and
// the long-period lunisolar periodics are not modeled.
func (s *SGP4) initDeepSpace(eosq, betao, betao2 float64) {
	sinq := math.Sin(s.xnodeo)
	cosq := math.Cos(s.xnodeo)
	// Days since 1900 Jan 0.5.
	day := JulianDate(s.epoch) - 2415020.0

	// Lunar node and inclination geometry at epoch.
	xnodce := 4.5236020 - 9.2422029e-4*day
	stem := math.Sin(xnodce)
	ctem := math.Cos(xnodce)
	zcosil := 0.91375164 - 0.03568096*ctem
	zsinil := math.Sqrt(1 - zcosil*zcosil)
	zsinhl := 0.089683511 * stem / zsinil
	zcoshl := math.Sqrt(1 - zsinhl*zsinhl)
	gam := 5.8351514 + 0.0019443680*day
	zx := 0.39785416 * stem / zsinil
	zy := zcoshl*ctem + 0.91744867*zsinhl*stem
	zx = gam + math.Atan2(zx, zy) - xnodce
	zcosgl := math.Cos(zx)
	zsingl := math.Sin(zx)

	solar := lunisolarGeom{
		zcosg: zcosgs, zsing: zsings,
		zcosi: zcosis, zsini: zsinis,
		zcosh: cosq, zsinh: sinq,
		cc: c1ss, zn: zns, ze: zes,
	}
	lunar := lunisolarGeom{
		zcosg: zcosgl, zsing: zsingl,
		zcosi: zcosil, zsini: zsinil,
		zcosh: zcoshl*cosq + zsinhl*sinq,
		zsinh: sinq*zcoshl - cosq*zsinhl,
		cc: c1l, zn: znl, ze: zel,
	}
	for _, geom := range []lunisolarGeom{solar, lunar} {
		se, si, sl, sgh, sh := s.secularRates(geom, eosq, betao, betao2)
		s.sse += se
		s.ssi += si
		s.ssl += sl
		s.ssg += sgh - s.cosio/s.sinio*sh
		s.ssh += sh / s.sinio
	}
}

// secularRates evaluates the secular contribution of one perturbing body.
func (s *SGP4) secularRates(g lunisolarGeom, eosq, betao, betao2 float64) (se, si, sl, sgh, sh float64) {
	sing := math.Sin(s.omegao)
	cosg := math.Cos(s.omegao)
	a1 := g.zcosg*g.zcosh + g.zsing*g.zcosi*g.zsinh
	a3 := -g.zsing*g.zcosh + g.zcosg*g.zcosi*g.zsinh
	a7 := -g.zcosg*g.zsinh + g.zsing*g.zcosi*g.zcosh
	a8 := g.zsing * g.zsini
	a9 := g.zsing*g.zsinh + g.zcosg*g.zcosi*g.zcosh
	a10 := g.zcosg * g.zsini
	a2 := s.cosio*a7 + s.sinio*a8
	a4 := s.cosio*a9 + s.sinio*a10
	a5 := -s.sinio*a7 + s.cosio*a8
	a6 := -s.sinio*a9 + s.cosio*a10
	x1 := a1*cosg + a2*sing
	x2 := a3*cosg + a4*sing
	x3 := -a1*sing + a2*cosg
	x4 := -a3*sing + a4*cosg
	x5 := a5 * sing
	x6 := a6 * sing
	x7 := a5 * cosg
	x8 := a6 * cosg
	z31 := 12*x1*x1 - 3*x3*x3
	z33 := 12*x2*x2 - 3*x4*x4
	z1 := 3*(a1*a1+a2*a2) + z31*eosq
	z3 := 3*(a3*a3+a4*a4) + z33*eosq
	z11 := -6*a1*a5 + eosq*(-24*x1*x7-6*x3*x5)
	z13 := -6*a3*a6 + eosq*(-24*x2*x8-6*x4*x6)
	z21 := 6*a2*a5 + eosq*(24*x1*x5-6*x3*x7)
	z23 := 6*a4*a6 + eosq*(24*x2*x6-6*x4*x8)
	z1 = z1 + z1 + betao2*z31
	z3 = z3 + z3 + betao2*z33
	s3 := g.cc / s.xnodp
	s2 := -0.5 * s3 / betao
	s4 := s3 * betao
	s1 := -15 * s.eo * s4
	s5 := x1*x3 + x2*x4
	se = s1 * g.zn * s5
	si = s2 * g.zn * (z11 + z13)
	sl = -g.zn * s3 * (z1 + z3 - 14 - 6*eosq)
	sgh = s4 * g.zn * (z31 + z33 - 6)
	sh = -g.zn * s2 * (z21 + z23)
	if s.xincl < 5.2359877e-2 {
		sh = 0
	}
	return
}

// StateAt returns the inertial state at the given epoch. A mean anomaly
// solution that fails to converge is reported with ErrConvergence; a
// trajectory decayed below the surface with ErrDecayed.
func (s *SGP4) StateAt(dt time.Time) (State, error) {
	tsince := dt.Sub(s.epoch).Minutes()

	// Secular gravity and atmospheric drag.
	xmdf := s.xmo + s.xmdot*tsince
	omgadf := s.omegao + s.omgdot*tsince
	xnoddf := s.xnodeo + s.xnodot*tsince
	tsq := tsince * tsince
	xnode := xnoddf + s.xnodcf*tsq
	tempa := 1 - s.c1*tsince
	tempe := s.bstar * s.c4 * tsince
	templ := s.t2cof * tsq

	var a, e, xl, xinc float64
	xinc = s.xincl
	omega := omgadf
	xmp := xmdf

	if s.deep {
		// Lunisolar secular rates on the mean elements.
		xll := xmdf + s.xnodp*templ + s.ssl*tsince
		omega = omgadf + s.ssg*tsince
		xnode = xnode + s.ssh*tsince
		e = s.eo + s.sse*tsince - tempe
		xinc = s.xincl + s.ssi*tsince
		if xinc < 0 {
			xinc = -xinc
			xnode += math.Pi
			omega -= math.Pi
		}
		a = math.Pow(sgpXKE/s.xnodp, sgpTwoThirds) * tempa * tempa
		xl = xll + omega + xnode
	} else {
		if !s.simple {
			delomg := s.omgcof * tsince
			delm := s.xmcof * (math.Pow(1+s.eta*math.Cos(xmdf), 3) - s.delmo)
			temp := delomg + delm
			xmp = xmdf + temp
			omega = omgadf - temp
			tcube := tsq * tsince
			tfour := tsince * tcube
			tempa = tempa - s.d2*tsq - s.d3*tcube - s.d4*tfour
			tempe = tempe + s.bstar*s.c5*(math.Sin(xmp)-s.sinmo)
			templ = templ + s.t3cof*tcube + tfour*(s.t4cof+tsince*s.t5cof)
		}
		a = s.aodp * tempa * tempa
		e = s.eo - tempe
		xl = xmp + omega + xnode + s.xnodp*templ
	}
	if e >= 1 || e < -0.001 || a < 0.95 {
		return State{}, fmt.Errorf("mean elements out of range at %s: %w", dt, ErrDecayed)
	}
	if e < 1e-6 {
		e = 1e-6
	}
	beta2 := 1 - e*e
	xn := sgpXKE / math.Pow(a, 1.5)

	// Long period periodics.
	axn := e * math.Cos(omega)
	temp := 1 / (a * beta2)
	xll := temp * s.xlcof * axn
	aynl := temp * s.aycof
	xlt := xl + xll
	ayn := e*math.Sin(omega) + aynl

	// Solve Kepler's equation on the eccentric longitude.
	capu := math.Mod(xlt-xnode, 2*math.Pi)
	if capu < 0 {
		capu += 2 * math.Pi
	}
	epw := capu
	var sinEpw, cosEpw float64
	converged := false
	for iter := 0; iter < keplerMaxIter; iter++ {
		sinEpw = math.Sin(epw)
		cosEpw = math.Cos(epw)
		δ := (capu - ayn*cosEpw + axn*sinEpw - epw) / (1 - axn*cosEpw - ayn*sinEpw)
		epw += δ
		if math.Abs(δ) < keplerTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return State{}, fmt.Errorf("eccentric longitude at %s: %w", dt, ErrConvergence)
	}
	sinEpw = math.Sin(epw)
	cosEpw = math.Cos(epw)

	// Short period preliminary quantities.
	ecosE := axn*cosEpw + ayn*sinEpw
	esinE := axn*sinEpw - ayn*cosEpw
	elsq := axn*axn + ayn*ayn
	pl := a * (1 - elsq)
	r := a * (1 - ecosE)
	rdot := sgpXKE * math.Sqrt(a) * esinE / r
	rfdot := sgpXKE * math.Sqrt(pl) / r
	betal := math.Sqrt(1 - elsq)
	t3 := 1 / (1 + betal)
	cosu := a / r * (cosEpw - axn + ayn*esinE*t3)
	sinu := a / r * (sinEpw - ayn - axn*esinE*t3)
	u := math.Atan2(sinu, cosu)
	sin2u := 2 * sinu * cosu
	cos2u := 2*cosu*cosu - 1
	t1 := sgpCK2 / pl
	t2 := t1 / pl

	// Short period periodics.
	rk := r*(1-1.5*t2*betal*s.x3thm1) + 0.5*t1*s.x1mth2*cos2u
	uk := u - 0.25*t2*s.x7thm1*sin2u
	xnodek := xnode + 1.5*t2*s.cosio*sin2u
	xinck := xinc + 1.5*t2*s.cosio*s.sinio*cos2u
	rdotk := rdot - xn*t1*s.x1mth2*sin2u
	rfdotk := rfdot + xn*t1*(s.x1mth2*cos2u+1.5*s.x3thm1)
	if rk < 1 {
		return State{}, fmt.Errorf("radius %f km at %s: %w", rk*sgpER, dt, ErrDecayed)
	}

	// Orientation vectors and the inertial state.
	sinuk := math.Sin(uk)
	cosuk := math.Cos(uk)
	sinik := math.Sin(xinck)
	cosik := math.Cos(xinck)
	sinnok := math.Sin(xnodek)
	cosnok := math.Cos(xnodek)
	xmx := -sinnok * cosik
	xmy := cosnok * cosik
	ux := xmx*sinuk + cosnok*cosuk
	uy := xmy*sinuk + sinnok*cosuk
	uz := sinik * sinuk
	vx := xmx*cosuk - cosnok*sinuk
	vy := xmy*cosuk - sinnok*sinuk
	vz := sinik * cosuk

	st := State{DT: dt, Frame: FrameInertial}
	st.R[0] = rk * ux * sgpER
	st.R[1] = rk * uy * sgpER
	st.R[2] = rk * uz * sgpER
	vFactor := sgpER / 60
	st.V[0] = (rdotk*ux + rfdotk*vx) * vFactor
	st.V[1] = (rdotk*uy + rfdotk*vy) * vFactor
	st.V[2] = (rdotk*uz + rfdotk*vz) * vFactor
	return st, nil
}

// GenerateEphemeris samples the analytical solution at a fixed step over
// [start, end]. Orbital decay terminates the ephemeris early and is
// reported as a success with Impacted set; any other failure returns the
// states generated so far alongside the error.
func (s *SGP4) GenerateEphemeris(start, end time.Time, step time.Duration) (*Result, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end %s not after start %s: %w", end, start, ErrTimeRange)
	}
	if step <= 0 {
		step = time.Minute
	}
	res := &Result{Ephemeris: NewEphemeris(FrameInertial)}
	for dt := start; !dt.After(end); dt = dt.Add(step) {
		st, err := s.StateAt(dt)
		if err != nil {
			if errors.Is(err, ErrDecayed) {
				res.Impacted = true
				res.ImpactEpoch = dt
				return res, nil
			}
			return res, err
		}
		if err := res.Ephemeris.Append(st); err != nil {
			return res, err
		}
	}
	// Always include the exact end epoch.
	if last, ok := res.Ephemeris.Last(); ok && last.DT.Before(end) {
		st, err := s.StateAt(end)
		if err != nil {
			if errors.Is(err, ErrDecayed) {
				res.Impacted = true
				res.ImpactEpoch = end
				return res, nil
			}
			return res, err
		}
		if err := res.Ephemeris.Append(st); err != nil {
			return res, err
		}
	}
	return res, nil
}
