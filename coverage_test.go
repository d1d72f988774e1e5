package astrokit

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"
)

// hoverEphemeris builds an ephemeris whose position at sample i sits at
// geodetic coordinates spots[i] (lat, lon in degrees; alt km). Coverage runs
// sampling at the same step hit these samples exactly.
func hoverEphemeris(t *testing.T, start time.Time, step time.Duration, spots [][3]float64) *Ephemeris {
	t.Helper()
	eph := NewEphemeris(FrameInertial)
	for i, spot := range spots {
		dt := start.Add(time.Duration(i) * step)
		rECEF := GEO2ECEF(spot[2], spot[0]*deg2rad, spot[1]*deg2rad)
		rECI := ECEF2ECI(rECEF, GST(dt))
		s := State{DT: dt, Frame: FrameInertial}
		copy(s.R[:], rECI)
		if err := eph.Append(s); err != nil {
			t.Fatal(err)
		}
	}
	return eph
}

func repeatSpot(lat, lon, alt float64, n int) [][3]float64 {
	spots := make([][3]float64, n)
	for i := range spots {
		spots[i] = [3]float64{lat, lon, alt}
	}
	return spots
}

func TestCoverageSingleSatellite(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	n := 21 // ten minutes
	eph := hoverEphemeris(t, start, step, repeatSpot(10, 20, 1000, n))

	grid, err := NewCoverageGrid(Region{MinLat: 0, MaxLat: 20, MinLon: 10, MaxLon: 30}, 10)
	if err != nil {
		t.Fatal(err)
	}
	cfg := CoverageConfig{Step: step, MinElevation: 10}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}

	var under *GridCell
	for _, cell := range grid.Cells {
		if cell.LatDeg == 15 && cell.LonDeg == 25 {
			under = cell
		}
	}
	if under == nil {
		t.Fatal("grid did not produce the expected cell centers")
	}
	if len(under.Accesses) != 1 {
		t.Fatalf("cell under the satellite has %d accesses, expected one continuous access", len(under.Accesses))
	}
	acc := under.Accesses[0]
	if !acc.Start.Equal(start) {
		t.Fatalf("access starts at %s", acc.Start)
	}
	// An access still open at the end of the window closes at the window end.
	if !acc.End.Equal(eph.End()) {
		t.Fatalf("access ends at %s, expected the window end %s", acc.End, eph.End())
	}
	if under.Stats.Accesses != 1 || under.Stats.HasRevisit {
		t.Fatalf("single continuous access must not report a revisit: %+v", under.Stats)
	}
	if under.Stats.TotalAccess != eph.End().Sub(start) {
		t.Fatalf("total access %s", under.Stats.TotalAccess)
	}
	if acc.MaxElevation <= 10 || acc.MaxElevation > 90 {
		t.Fatalf("max elevation %f deg out of range", acc.MaxElevation)
	}
}

func TestCoverageRevisitGap(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	// Overhead, then on the far side of the planet, then overhead again.
	spots := append(repeatSpot(10, 20, 1000, 5), repeatSpot(-10, -160, 1000, 5)...)
	spots = append(spots, repeatSpot(10, 20, 1000, 5)...)
	eph := hoverEphemeris(t, start, step, spots)

	grid, err := NewCoverageGrid(Region{MinLat: 5, MaxLat: 15, MinLon: 15, MaxLon: 25}, 10)
	if err != nil {
		t.Fatal(err)
	}
	cfg := CoverageConfig{Step: step, MinElevation: 10}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}
	cell := grid.Cells[0]
	if len(cell.Accesses) != 2 {
		t.Fatalf("expected two accesses, got %d", len(cell.Accesses))
	}
	if !cell.Accesses[0].Start.Before(cell.Accesses[1].Start) {
		t.Fatal("accesses not ordered by start time")
	}
	if cell.Accesses[1].Start.Before(cell.Accesses[0].End) {
		t.Fatal("accesses of one cell must not overlap")
	}
	if !cell.Stats.HasRevisit {
		t.Fatal("two separated accesses must report a revisit")
	}
	if cell.Stats.MeanRevisit <= 0 {
		t.Fatalf("mean revisit %s must be positive, never zero", cell.Stats.MeanRevisit)
	}
	if cell.Stats.MeanRevisit != cell.Stats.MaxRevisit {
		t.Fatalf("a single gap means mean == max, got %s vs %s", cell.Stats.MeanRevisit, cell.Stats.MaxRevisit)
	}
}

func TestCoverageShorterEphemerisIsAbsent(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	eph := hoverEphemeris(t, start, step, repeatSpot(10, 20, 1000, 5))

	grid, err := NewCoverageGrid(Region{MinLat: 5, MaxLat: 15, MinLon: 15, MaxLon: 25}, 10)
	if err != nil {
		t.Fatal(err)
	}
	// The coverage window extends well past the ephemeris.
	cfg := CoverageConfig{
		Start:        start,
		End:          start.Add(10 * time.Minute),
		Step:         step,
		MinElevation: 10,
	}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}
	cell := grid.Cells[0]
	if len(cell.Accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(cell.Accesses))
	}
	// The satellite is simply absent after its last sample, so the access
	// closes at the first sample without it rather than at the window end.
	if !cell.Accesses[0].End.Equal(eph.End().Add(step)) {
		t.Fatalf("access ends at %s, expected %s", cell.Accesses[0].End, eph.End().Add(step))
	}
}

func TestCoverageSingleSampleAccessHasDuration(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	// Overhead only at the middle sample.
	spots := [][3]float64{{-10, -160, 1000}, {10, 20, 1000}, {-10, -160, 1000}}
	eph := hoverEphemeris(t, start, step, spots)

	grid, err := NewCoverageGrid(Region{MinLat: 5, MaxLat: 15, MinLon: 15, MaxLon: 25}, 10)
	if err != nil {
		t.Fatal(err)
	}
	cfg := CoverageConfig{Step: step, MinElevation: 10}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}
	cell := grid.Cells[0]
	if len(cell.Accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(cell.Accesses))
	}
	acc := cell.Accesses[0]
	if !acc.End.After(acc.Start) {
		t.Fatalf("access [%s, %s] has no duration", acc.Start, acc.End)
	}
	// Seen only at the middle sample: the access closes at the next one.
	if !acc.Start.Equal(start.Add(step)) || !acc.End.Equal(start.Add(2*step)) {
		t.Fatalf("access [%s, %s], expected [%s, %s]", acc.Start, acc.End, start.Add(step), start.Add(2*step))
	}
}

func TestCoverageFinalSampleAccessHasDuration(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := 30 * time.Second
	// Overhead only at the very last sample of the window.
	spots := [][3]float64{{-10, -160, 1000}, {-10, -160, 1000}, {10, 20, 1000}}
	eph := hoverEphemeris(t, start, step, spots)

	grid, err := NewCoverageGrid(Region{MinLat: 5, MaxLat: 15, MinLon: 15, MaxLon: 25}, 10)
	if err != nil {
		t.Fatal(err)
	}
	cfg := CoverageConfig{Step: step, MinElevation: 10}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}
	cell := grid.Cells[0]
	if len(cell.Accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(cell.Accesses))
	}
	acc := cell.Accesses[0]
	if !acc.End.After(acc.Start) {
		t.Fatalf("access [%s, %s] has no duration", acc.Start, acc.End)
	}
	if got := acc.End.Sub(acc.Start); got != step {
		t.Fatalf("access opened at the window end spans %s, expected %s", got, step)
	}
}

func TestCoverageSpatialIndexIdenticalResults(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := time.Minute
	ephA := hoverEphemeris(t, start, step, repeatSpot(10, 20, 1200, 11))
	ephB := hoverEphemeris(t, start, step, repeatSpot(-30, 120, 800, 11))
	eph := []*Ephemeris{ephA, ephB}

	run := func(index bool) *CoverageGrid {
		grid, err := NewCoverageGrid(GlobalRegion, 15)
		if err != nil {
			t.Fatal(err)
		}
		cfg := CoverageConfig{Step: step, MinElevation: 5, SpatialIndex: index}
		if err := ComputeCoverage(context.Background(), grid, eph, cfg); err != nil {
			t.Fatal(err)
		}
		return grid
	}
	plain := run(false)
	indexed := run(true)
	for i := range plain.Cells {
		if !reflect.DeepEqual(plain.Cells[i].Accesses, indexed.Cells[i].Accesses) {
			t.Fatalf("cell (%f,%f): accesses differ with the spatial index enabled",
				plain.Cells[i].LatDeg, plain.Cells[i].LonDeg)
		}
		if plain.Cells[i].Stats != indexed.Cells[i].Stats {
			t.Fatalf("cell (%f,%f): stats differ with the spatial index enabled",
				plain.Cells[i].LatDeg, plain.Cells[i].LonDeg)
		}
	}
}

func TestCoverageProgressReporting(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	step := time.Minute
	eph := hoverEphemeris(t, start, step, repeatSpot(10, 20, 1000, 6))
	grid, err := NewCoverageGrid(Region{MinLat: 0, MaxLat: 20, MinLon: 10, MaxLon: 30}, 10)
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var calls int
	var maxFrac float64
	cfg := CoverageConfig{
		Step:         step,
		MinElevation: 10,
		Progress: func(epoch time.Time, frac float64) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if frac > maxFrac {
				maxFrac = frac
			}
			if !epoch.Equal(eph.End()) {
				t.Errorf("progress epoch %s, expected the window end %s", epoch, eph.End())
			}
			if frac <= 0 || frac > 1 {
				t.Errorf("fraction %f out of (0, 1]", frac)
			}
		},
	}
	if err := ComputeCoverage(context.Background(), grid, []*Ephemeris{eph}, cfg); err != nil {
		t.Fatal(err)
	}
	if calls != len(grid.Cells) {
		t.Fatalf("progress called %d times for %d cells", calls, len(grid.Cells))
	}
	if maxFrac != 1 {
		t.Fatalf("final fraction %f, expected 1", maxFrac)
	}
}

func TestCoverageCancellation(t *testing.T) {
	start := time.Date(2017, 3, 15, 0, 0, 0, 0, time.UTC)
	eph := hoverEphemeris(t, start, time.Minute, repeatSpot(0, 0, 1000, 61))
	grid, err := NewCoverageGrid(GlobalRegion, 5)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ComputeCoverage(ctx, grid, []*Ephemeris{eph}, CoverageConfig{Step: time.Minute})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestElevationThresholdInclusive(t *testing.T) {
	cell := &GridCell{LatDeg: 0, LonDeg: 0, rECEF: GEO2ECEF(0, 0, 0)}
	// A satellite north of the cell, above the horizon.
	satECEF := GEO2ECEF(800, 25*deg2rad, 0)
	ρ := make([]float64, 3)
	for i := 0; i < 3; i++ {
		ρ[i] = satECEF[i] - cell.rECEF[i]
	}
	rSEZ := MxV33(R2(math.Pi/2), ρ)
	el := math.Asin(rSEZ[2]/norm(ρ)) / deg2rad
	if _, ok := cellSeesSat(cell, satECEF, el); !ok {
		t.Fatalf("a satellite exactly at the %f deg threshold must count", el)
	}
	if _, ok := cellSeesSat(cell, satECEF, el+1e-9); ok {
		t.Fatal("a satellite just below the threshold must not count")
	}
}

func TestSatIndexBoundedQuery(t *testing.T) {
	points := [][]float64{
		{7000, 0, 0},
		nil, // a satellite with no data at this epoch
		{0, 7000, 0},
		{-42164, 0, 0},
	}
	ix := newSatIndex(points)
	near := ix.within([]float64{7000, 100, 0}, 500, points)
	if near[0] == nil {
		t.Fatal("point within radius was dropped")
	}
	if near[1] != nil || near[2] != nil || near[3] != nil {
		t.Fatal("points outside radius must be pruned")
	}
}
