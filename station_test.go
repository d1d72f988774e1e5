package astrokit

import (
	"math"
	"testing"
	"time"
)

func TestStationRangeElAz(t *testing.T) {
	st := NewStation("DSS-13", 1.07, 10, 35.247164, -116.794587)
	// A point 500 km straight up from the station.
	up := unit(st.R)
	sat := make([]float64, 3)
	for i := 0; i < 3; i++ {
		sat[i] = st.R[i] + 500*up[i]
	}
	_, ρ, el, _ := st.RangeElAz(sat)
	if math.Abs(ρ-500) > 1e-6 {
		t.Fatalf("range %f km, expected 500", ρ)
	}
	if math.Abs(el-90) > 1e-6 {
		t.Fatalf("elevation %f deg, expected 90", el)
	}
	// A point due north of the station at the same geocentric radius is on
	// the horizon plane's north side: azimuth near zero, elevation negative.
	north := GEO2ECEF(st.Altitude, st.LatΦ+5*deg2rad, st.Longθ)
	_, _, el, az := st.RangeElAz(north)
	if el >= 0 {
		t.Fatalf("a surface point beyond the horizon has elevation %f", el)
	}
	if az > 5 && az < 355 {
		t.Fatalf("azimuth %f deg, expected near north", az)
	}
}

func TestStationSignedLatitude(t *testing.T) {
	south := NewStation("Canberra", 0.692, 5, -35.401389, 148.981667)
	if south.R[2] >= 0 {
		t.Fatalf("southern station must have negative z, got %f", south.R[2])
	}
	if south.LatΦ >= 0 {
		t.Fatalf("stored latitude %f must stay negative", south.LatΦ)
	}
}

func TestStationPasses(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	st := NewStation("Madrid", 0.834, 10, 40.427222, -4.250556)
	// Overhead, away, overhead again: two passes.
	latDeg, lonDeg := st.LatΦ/deg2rad, st.Longθ/deg2rad
	spots := append(repeatSpot(latDeg, lonDeg, 800, 4), repeatSpot(-latDeg, lonDeg+180, 800, 4)...)
	spots = append(spots, repeatSpot(latDeg, lonDeg, 800, 4)...)
	eph := hoverEphemeris(t, start, step, spots)

	passes := st.Passes(eph, step)
	if len(passes) != 2 {
		t.Fatalf("expected two passes, got %d", len(passes))
	}
	if !passes[0].End.Before(passes[1].Start) {
		t.Fatal("passes must be disjoint and ordered")
	}
	// The second pass is still open at the end of the ephemeris.
	if !passes[1].End.Equal(eph.End()) {
		t.Fatalf("open pass must close at the last sample, got %s", passes[1].End)
	}
	if passes[0].MaxElevation < 80 {
		t.Fatalf("overhead pass peaked at %f deg", passes[0].MaxElevation)
	}
}

func TestStationSingleSamplePassHasDuration(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	st := NewStation("Madrid", 0.834, 10, 40.427222, -4.250556)
	latDeg, lonDeg := st.LatΦ/deg2rad, st.Longθ/deg2rad
	// Overhead only at the middle sample.
	spots := [][3]float64{
		{-latDeg, lonDeg + 180, 800},
		{latDeg, lonDeg, 800},
		{-latDeg, lonDeg + 180, 800},
	}
	eph := hoverEphemeris(t, start, step, spots)

	passes := st.Passes(eph, step)
	if len(passes) != 1 {
		t.Fatalf("expected one pass, got %d", len(passes))
	}
	if !passes[0].End.After(passes[0].Start) {
		t.Fatalf("pass [%s, %s] has no duration", passes[0].Start, passes[0].End)
	}
	if !passes[0].End.Equal(start.Add(2 * step)) {
		t.Fatalf("pass must close at the first sample below the mask, got %s", passes[0].End)
	}
}

func TestStationRangeRateSign(t *testing.T) {
	st := NewStation("test", 0, 0, 0, 0)
	up := unit(st.R)
	var state State
	state.DT = time.Date(2017, 3, 15, 12, 0, 0, 0, time.UTC)
	θgst := GST(state.DT)
	rECEF := make([]float64, 3)
	for i := 0; i < 3; i++ {
		rECEF[i] = st.R[i] + 600*up[i]
	}
	copy(state.R[:], ECEF2ECI(rECEF, θgst))
	// Receding radially at 1 km/s in the ECEF frame.
	vECEF := make([]float64, 3)
	for i := 0; i < 3; i++ {
		vECEF[i] = st.V[i] + up[i]
	}
	copy(state.V[:], ECEF2ECI(vECEF, θgst))
	if rr := st.RangeRate(state); math.Abs(rr-1) > 1e-9 {
		t.Fatalf("range rate %f km/s, expected +1", rr)
	}
}
