package astrokit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// earthFlattening is the WGS-84 flattening of the reference ellipsoid.
const earthFlattening = 3.35281066474748e-3

// Region is a latitude/longitude box, in degrees. Longitudes are in
// [-180, 180] and the box must not wrap the antimeridian.
type Region struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// GlobalRegion covers the whole globe.
var GlobalRegion = Region{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// AccessInterval is a window during which a target was visible from at
// least one satellite. Sat is the index, among the ephemerides passed to
// the coverage run, of the satellite that opened the access (zero for
// single-satellite uses such as station passes). Intervals of one cell
// never overlap.
type AccessInterval struct {
	Start, End   time.Time
	Sat          int
	MaxElevation float64 // deg, highest elevation sampled during the access
}

// Duration returns the length of the access.
func (a AccessInterval) Duration() time.Duration { return a.End.Sub(a.Start) }

// RevisitStats summarizes the accesses of one grid cell.
type RevisitStats struct {
	Accesses    int
	TotalAccess time.Duration
	MeanRevisit time.Duration // meaningful only when HasRevisit
	MaxRevisit  time.Duration
	HasRevisit  bool // false with fewer than two merged accesses
}

// GridCell is one cell of a coverage grid, keyed by its center point.
type GridCell struct {
	LatDeg, LonDeg float64
	rECEF          []float64 // center on the sphere, ECEF
	Accesses       []AccessInterval
	Stats          RevisitStats
}

// CoverageGrid discretizes a region into cells of a fixed angular
// resolution.
type CoverageGrid struct {
	Region     Region
	Resolution float64 // degrees per cell side
	Cells      []*GridCell
}

// NewCoverageGrid builds the grid of cell centers covering the region.
func NewCoverageGrid(region Region, resolutionDeg float64) (*CoverageGrid, error) {
	if resolutionDeg <= 0 {
		return nil, fmt.Errorf("resolution %f must be positive", resolutionDeg)
	}
	if region.MaxLat <= region.MinLat || region.MaxLon <= region.MinLon {
		return nil, fmt.Errorf("region %+v is empty", region)
	}
	g := &CoverageGrid{Region: region, Resolution: resolutionDeg}
	for lat := region.MinLat + resolutionDeg/2; lat <= region.MaxLat; lat += resolutionDeg {
		for lon := region.MinLon + resolutionDeg/2; lon <= region.MaxLon; lon += resolutionDeg {
			g.Cells = append(g.Cells, &GridCell{
				LatDeg: lat,
				LonDeg: lon,
				rECEF:  GEO2ECEF(0, lat*deg2rad, lon*deg2rad),
			})
		}
	}
	return g, nil
}

// CoverageConfig drives a coverage run.
type CoverageConfig struct {
	Start, End   time.Time     // zero values default to the ephemerides' span
	Step         time.Duration // sampling step, default 10s
	MinElevation float64       // degrees, inclusive threshold
	Workers      int
	// SpatialIndex enables the per-sample satellite index. Results are
	// identical with and without; the index only prunes cells that are
	// geometrically unable to see any satellite.
	SpatialIndex bool
	// Progress, when set, is invoked after each completed cell with the end
	// of the analysis window and the fraction of cells done. It may be
	// called from several workers at once and must return quickly.
	Progress     func(currentEpoch time.Time, fractionComplete float64)
	Logger       log.Logger
}

// ComputeCoverage samples every satellite ephemeris over the window and
// fills each grid cell with its access intervals and revisit statistics. A
// satellite whose ephemeris does not cover a sample epoch simply contributes
// nothing at that epoch.
func ComputeCoverage(ctx context.Context, grid *CoverageGrid, ephemerides []*Ephemeris, cfg CoverageConfig) error {
	if cfg.Step <= 0 {
		cfg.Step = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	if len(ephemerides) == 0 {
		return fmt.Errorf("no ephemerides to analyze")
	}
	// The pruning radius assumes the satellite is above the local horizon.
	if cfg.MinElevation < 0 {
		cfg.SpatialIndex = false
	}
	start, end := cfg.Start, cfg.End
	if start.IsZero() || end.IsZero() {
		for _, eph := range ephemerides {
			if eph.Len() == 0 {
				continue
			}
			if start.IsZero() || eph.Start().Before(start) {
				start = eph.Start()
			}
			if end.IsZero() || eph.End().After(end) {
				end = eph.End()
			}
		}
	}
	if !end.After(start) {
		return fmt.Errorf("coverage window [%s, %s]: %w", start, end, ErrTimeRange)
	}

	// Precompute the satellite ECEF positions at every sample epoch. The
	// per-epoch slices are read-only afterwards and shared by all workers.
	type sample struct {
		dt    time.Time
		sats  [][]float64 // nil where the ephemeris has no data
		index *satIndex
	}
	var samples []sample
	for dt := start; !dt.After(end); dt = dt.Add(cfg.Step) {
		sm := sample{dt: dt, sats: make([][]float64, len(ephemerides))}
		θgst := GST(dt)
		any := false
		for i, eph := range ephemerides {
			st, err := eph.At(dt)
			if err != nil {
				continue
			}
			sm.sats[i] = ECI2ECEF(st.R[:], θgst)
			any = true
		}
		if cfg.SpatialIndex && any {
			sm.index = newSatIndex(sm.sats)
		}
		samples = append(samples, sm)
	}
	// The final access boundary is the window end, not the last sample.
	windowEnd := samples[len(samples)-1].dt

	// The pruning radius bounds the slant range at zero elevation for the
	// highest satellite seen; it is conservative for any higher threshold.
	var queryRadius float64
	if cfg.SpatialIndex {
		maxR := Earth.Radius
		for _, sm := range samples {
			for _, r := range sm.sats {
				if r != nil {
					if n := norm(r); n > maxR {
						maxR = n
					}
				}
			}
		}
		queryRadius = math.Sqrt(maxR*maxR - Earth.Radius*Earth.Radius)
	}

	level.Debug(cfg.Logger).Log("msg", "coverage run", "cells", len(grid.Cells), "samples", len(samples), "sats", len(ephemerides))

	// Each worker owns its cells exclusively, so no synchronization is
	// needed on the cell data.
	jobs := make(chan *GridCell)
	var wg sync.WaitGroup
	var cancelled bool
	var once sync.Once
	var done atomic.Int64
	totalCells := float64(len(grid.Cells))
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cell := range jobs {
				select {
				case <-ctx.Done():
					once.Do(func() { cancelled = true })
					continue
				default:
				}
				var open *AccessInterval
				for _, sm := range samples {
					candidates := sm.sats
					if sm.index != nil {
						candidates = sm.index.within(cell.rECEF, queryRadius, sm.sats)
					}
					// The cell is visible when any satellite sees it; keep
					// the highest elevation of the sample.
					bestEl, bestSat := 0.0, -1
					for i, satECEF := range candidates {
						if satECEF == nil {
							continue
						}
						if el, ok := cellSeesSat(cell, satECEF, cfg.MinElevation); ok {
							if bestSat < 0 || el > bestEl {
								bestEl, bestSat = el, i
							}
						}
					}
					if bestSat >= 0 {
						if open == nil {
							open = &AccessInterval{Start: sm.dt, Sat: bestSat, MaxElevation: bestEl}
						}
						if bestEl > open.MaxElevation {
							open.MaxElevation = bestEl
						}
					} else if open != nil {
						// Visibility was lost between the previous sample
						// and this one: close at this epoch so every
						// access has a positive duration.
						open.End = sm.dt
						cell.Accesses = append(cell.Accesses, *open)
						open = nil
					}
				}
				if open != nil {
					open.End = windowEnd
					if !open.End.After(open.Start) {
						open.End = open.Start.Add(cfg.Step)
					}
					cell.Accesses = append(cell.Accesses, *open)
				}
				cell.Stats = revisitStats(cell.Accesses)
				if cfg.Progress != nil {
					cfg.Progress(windowEnd, float64(done.Add(1))/totalCells)
				}
			}
		}()
	}
	for _, cell := range grid.Cells {
		jobs <- cell
	}
	close(jobs)
	wg.Wait()
	if cancelled {
		return fmt.Errorf("coverage run: %w", ErrCancelled)
	}
	return nil
}

// cellSeesSat returns the elevation of the satellite at satECEF from the
// cell center and whether it is at or above the threshold without being
// occluded by the ellipsoid.
func cellSeesSat(cell *GridCell, satECEF []float64, minElevationDeg float64) (float64, bool) {
	ρ := make([]float64, 3)
	for i := 0; i < 3; i++ {
		ρ[i] = satECEF[i] - cell.rECEF[i]
	}
	ρNorm := norm(ρ)
	rSEZ := MxV33(R3(cell.LonDeg*deg2rad), ρ)
	rSEZ = MxV33(R2(math.Pi/2-cell.LatDeg*deg2rad), rSEZ)
	el := math.Asin(rSEZ[2]/ρNorm) / deg2rad
	if el < minElevationDeg {
		return el, false
	}
	return el, !ellipsoidOccluded(cell.rECEF, satECEF, Earth)
}

// ellipsoidOccluded reports whether the segment from a ground point to a
// satellite (both ECEF, km) passes through the reference ellipsoid. The
// ellipsoid is stretched along z into a sphere before the segment test.
func ellipsoidOccluded(ground, sat []float64, body CelestialObject) bool {
	scale := 1 / (1 - earthFlattening)
	p := []float64{ground[0], ground[1], ground[2] * scale}
	q := []float64{sat[0], sat[1], sat[2] * scale}
	d := []float64{q[0] - p[0], q[1] - p[1], q[2] - p[2]}
	dd := dot(d, d)
	if dd == 0 {
		return false
	}
	t := -dot(p, d) / dd
	if t <= 1e-9 || t >= 1 {
		return false
	}
	c := []float64{p[0] + t*d[0], p[1] + t*d[1], p[2] + t*d[2]}
	// Slightly shrunk so a surface endpoint does not occlude itself.
	return norm(c) < body.Radius*(1-1e-6)
}

// revisitStats derives the gap statistics of a cell's (sorted) accesses.
// With fewer than two accesses there is no revisit and the mean is reported
// as absent rather than zero. Accesses that touch or overlap are merged
// first, so callers assembling their own interval lists get sane gaps.
func revisitStats(accesses []AccessInterval) RevisitStats {
	stats := RevisitStats{Accesses: len(accesses)}
	if len(accesses) == 0 {
		return stats
	}
	merged := []AccessInterval{accesses[0]}
	for _, acc := range accesses[1:] {
		last := &merged[len(merged)-1]
		if !acc.Start.After(last.End) {
			if acc.End.After(last.End) {
				last.End = acc.End
			}
			continue
		}
		merged = append(merged, acc)
	}
	for _, acc := range merged {
		stats.TotalAccess += acc.Duration()
	}
	if len(merged) < 2 {
		return stats
	}
	gaps := make([]float64, 0, len(merged)-1)
	for i := 1; i < len(merged); i++ {
		gaps = append(gaps, merged[i].Start.Sub(merged[i-1].End).Seconds())
	}
	stats.HasRevisit = true
	stats.MeanRevisit = time.Duration(stat.Mean(gaps, nil) * float64(time.Second))
	stats.MaxRevisit = time.Duration(floats.Max(gaps) * float64(time.Second))
	return stats
}
