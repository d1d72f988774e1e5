package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"

	"github.com/astrium-labs/astrokit"
)

// This binary reads a scenario file and propagates each satellite, writing
// an OEM and a CSV ephemeris per satellite.

var (
	scenario string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", "", "scenario TOML file")
	flag.BoolVar(&verbose, "verbose", false, "log every propagation step decision")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outDir := scen.OutputDir
	if outDir == "" {
		outDir = "."
	}
	cfg := astrokit.PropagationConfig{
		Start:     scen.Start,
		End:       scen.End,
		Step:      scen.Step,
		Tolerance: scen.Tolerance,
		Method:    scen.Method,
	}
	if verbose {
		cfg.Logger = logger
	}

	for _, sat := range scen.Satellites {
		start := time.Now()
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
			logger.Log("satellite", sat.Name, "err", err)
			if res == nil || res.Ephemeris.Len() == 0 {
				continue
			}
			logger.Log("satellite", sat.Name, "msg", "writing partial ephemeris", "states", res.Ephemeris.Len())
		}
		if res.Impacted {
			logger.Log("satellite", sat.Name, "msg", "impacted central body", "epoch", res.ImpactEpoch)
		}
		if err := export(res, sat.Name, outDir); err != nil {
			fatal(logger, err.Error())
		}
		logger.Log("satellite", sat.Name, "states", res.Ephemeris.Len(), "elapsed", time.Since(start))
	}
}

func export(res *astrokit.Result, name, outDir string) error {
	base := filepath.Join(outDir, sanitize(name))
	oem, err := os.Create(base + ".oem")
	if err != nil {
		return err
	}
	defer oem.Close()
	if err := res.Ephemeris.WriteOEM(oem, name); err != nil {
		return err
	}
	csv, err := os.Create(base + ".csv")
	if err != nil {
		return err
	}
	defer csv.Close()
	return res.Ephemeris.WriteCSV(csv)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '-'
		}
		return r
	}, name)
}

func fatal(logger log.Logger, msg string) {
	logger.Log("fatal", msg)
	os.Exit(1)
}
