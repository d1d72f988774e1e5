package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-kit/log"

	"github.com/astrium-labs/astrokit"
)

// This binary propagates the satellites of a scenario and runs the coverage
// analysis over the configured region, writing per-cell revisit statistics
// as CSV.

var (
	scenario string
	workers  int
)

func init() {
	flag.StringVar(&scenario, "scenario", "", "scenario TOML file")
	flag.IntVar(&workers, "workers", 0, "coverage worker count (0 picks a default)")
}

func main() {
	flag.Parse()
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if scenario == "" {
		fatal(logger, "no scenario provided")
	}
	scen, err := astrokit.LoadScenario(scenario)
	if err != nil {
		fatal(logger, err.Error())
	}
	if !scen.Coverage.Enabled {
		fatal(logger, "scenario has no [coverage] section")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Propagate every satellite first.
	cfg := astrokit.PropagationConfig{
		Start:     scen.Start,
		End:       scen.End,
		Step:      scen.Step,
		Tolerance: scen.Tolerance,
		Method:    scen.Method,
	}
	ephemerides := make([]*astrokit.Ephemeris, 0, len(scen.Satellites))
	for _, sat := range scen.Satellites {
		var res *astrokit.Result
		var err error
		if sat.TLE != nil {
			var model *astrokit.SGP4
			model, err = astrokit.NewSGP4(sat.TLE)
			if err == nil {
				res, err = model.GenerateEphemeris(scen.Start, scen.End, scen.Step)
			}
		} else {
			fm := astrokit.ForceModel{Body: astrokit.Earth, Perts: scen.Perts}
			res, err = astrokit.NewPropagator(sat.Orbit, fm, cfg).Propagate(ctx)
		}
		if err != nil {
			fatal(logger, fmt.Sprintf("%s: %s", sat.Name, err))
		}
		ephemerides = append(ephemerides, res.Ephemeris)
	}

	grid, err := astrokit.NewCoverageGrid(scen.Coverage.Region, scen.Coverage.Resolution)
	if err != nil {
		fatal(logger, err.Error())
	}
	start := time.Now()
	covCfg := astrokit.CoverageConfig{
		Start:        scen.Start,
		End:          scen.End,
		Step:         scen.Step,
		MinElevation: scen.Coverage.MinElevation,
		Workers:      workers,
		SpatialIndex: scen.Coverage.SpatialIndex,
		Logger:       logger,
	}
	if err := astrokit.ComputeCoverage(ctx, grid, ephemerides, covCfg); err != nil {
		fatal(logger, err.Error())
	}
	logger.Log("msg", "coverage computed", "cells", len(grid.Cells), "elapsed", time.Since(start))

	outDir := scen.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := writeCellStats(grid, filepath.Join(outDir, "coverage.csv")); err != nil {
		fatal(logger, err.Error())
	}

	// Station pass reports, when stations are configured.
	for _, station := range scen.Stations {
		for i, eph := range ephemerides {
			for _, pass := range station.Passes(eph, scen.Step) {
				logger.Log("station", station.Name, "satellite", scen.Satellites[i].Name,
					"aos", pass.Start, "los", pass.End, "duration", pass.Duration())
			}
		}
	}
}

func writeCellStats(grid *astrokit.CoverageGrid, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "lat_deg,lon_deg,accesses,total_access_s,mean_revisit_s,max_revisit_s")
	for _, cell := range grid.Cells {
		mean, max := "", ""
		if cell.Stats.HasRevisit {
			mean = fmt.Sprintf("%.1f", cell.Stats.MeanRevisit.Seconds())
			max = fmt.Sprintf("%.1f", cell.Stats.MaxRevisit.Seconds())
		}
		fmt.Fprintf(w, "%.3f,%.3f,%d,%.1f,%s,%s\n", cell.LatDeg, cell.LonDeg,
			cell.Stats.Accesses, cell.Stats.TotalAccess.Seconds(), mean, max)
	}
	return w.Flush()
}

func fatal(logger log.Logger, msg string) {
	logger.Log("fatal", msg)
	os.Exit(1)
}
