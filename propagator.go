package astrokit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Method selects the numerical integration scheme.
type Method int

const (
	// MethodRK78 is the adaptive Runge-Kutta-Fehlberg 7(8) pair (default).
	MethodRK78 Method = iota
	// MethodABM4 is the fixed-step Adams-Bashforth-Moulton corrector.
	MethodABM4
)

func (m Method) String() string {
	if m == MethodABM4 {
		return "ABM4"
	}
	return "RK7(8)"
}

// Default propagation settings, applied by PropagationConfig.setDefaults.
const (
	defaultStep       = 10 * time.Second
	defaultMinStep    = 10 * time.Millisecond
	defaultMaxStep    = 5 * time.Minute
	defaultTolerance  = 1e-9
	defaultMaxRejects = 25
)

// PropagationConfig drives a numerical propagation.
type PropagationConfig struct {
	Start, End time.Time
	Step       time.Duration // initial step (fixed step for ABM4)
	Tolerance  float64       // local truncation error bound per step
	MinStep    time.Duration
	MaxStep    time.Duration
	MaxRejects int // consecutive step rejections before giving up

	Method Method

	// Progress, if set, is called after each accepted step with the
	// current epoch and the completed fraction of the time span. It must
	// return quickly.
	Progress func(epoch time.Time, frac float64)
	// History, if set, receives every accepted state. Sends never block:
	// states are dropped if the channel is full.
	History chan<- State
	Logger  log.Logger
}

func (cfg *PropagationConfig) setDefaults() {
	if cfg.Step <= 0 {
		cfg.Step = defaultStep
	}
	if cfg.MinStep <= 0 {
		cfg.MinStep = defaultMinStep
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = defaultMaxStep
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.MaxRejects <= 0 {
		cfg.MaxRejects = defaultMaxRejects
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
}

// Result is the outcome of a propagation. On failure the ephemeris holds
// every state accepted before the failure.
type Result struct {
	Ephemeris   *Ephemeris
	Impacted    bool // the trajectory reached the central body surface
	ImpactEpoch time.Time
}

// Propagator numerically propagates an initial orbit under a force model.
type Propagator struct {
	InitialOrbit *Orbit
	FM           ForceModel
	cfg          PropagationConfig
}

// NewPropagator returns a propagator for the given initial orbit, force
// model and configuration.
func NewPropagator(o *Orbit, fm ForceModel, cfg PropagationConfig) *Propagator {
	cfg.setDefaults()
	return &Propagator{InitialOrbit: o, FM: fm, cfg: cfg}
}

// Propagate integrates the trajectory from Start to End. The returned
// result always carries the states accepted so far, even when the error is
// non-nil. Reaching the central body surface terminates the propagation
// early and is reported as a success with Impacted set.
func (p *Propagator) Propagate(ctx context.Context) (*Result, error) {
	cfg := p.cfg
	logger := log.With(cfg.Logger, "orbit", p.InitialOrbit.String(), "method", cfg.Method.String())
	if !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("end %s not after start %s: %w", cfg.End, cfg.Start, ErrTimeRange)
	}

	eph := NewEphemeris(FrameInertial)
	res := &Result{Ephemeris: eph}

	// State vector: position then velocity.
	R, V := p.InitialOrbit.RV()
	y := []float64{R[0], R[1], R[2], V[0], V[1], V[2]}
	if err := p.record(res, cfg.Start, y, 0); err != nil {
		return res, p.failure(res, err)
	}

	var integ Integrator
	adaptive := true
	switch cfg.Method {
	case MethodABM4:
		integ = NewABM4()
		adaptive = false
	default:
		integ = NewRK78()
	}

	f := func(t float64, y []float64) []float64 {
		epoch := cfg.Start.Add(time.Duration(t * float64(time.Second)))
		a := p.FM.Accel(epoch, y[0:3], y[3:6])
		return []float64{y[3], y[4], y[5], a[0], a[1], a[2]}
	}

	span := cfg.End.Sub(cfg.Start).Seconds()
	h := cfg.Step.Seconds()
	hMin := cfg.MinStep.Seconds()
	hMax := cfg.MaxStep.Seconds()
	t := 0.0
	rejects := 0

	level.Debug(logger).Log("msg", "starting propagation", "span", cfg.End.Sub(cfg.Start), "step", cfg.Step)

	for t < span {
		select {
		case <-ctx.Done():
			level.Info(logger).Log("msg", "propagation cancelled", "epoch", cfg.Start.Add(time.Duration(t*float64(time.Second))))
			return res, p.failure(res, ErrCancelled)
		default:
		}
		// Never step past the end epoch. When less than a nanosecond of
		// span remains the epoch cannot advance, so the run is complete.
		if t+h > span {
			h = span - t
			if h < 1e-9 {
				break
			}
		}
		yNext, errEst := integ.Step(f, t, y, h)
		if adaptive && errEst > cfg.Tolerance {
			// A rejection at the minimum step is retried like any other;
			// only the consecutive-rejection budget gives up.
			rejects++
			if rejects > cfg.MaxRejects {
				level.Error(logger).Log("msg", "step size collapse", "h", h, "err", errEst, "rejects", rejects)
				return res, p.failure(res, ErrStepSizeCollapse)
			}
			h = stepClamp(0.9*h*math.Pow(cfg.Tolerance/errEst, 1./8), hMin, hMax)
			continue
		}
		rejects = 0
		t += h
		y = yNext
		epoch := cfg.Start.Add(time.Duration(t * float64(time.Second)))
		if err := p.record(res, epoch, y, t/span); err != nil {
			return res, p.failure(res, err)
		}
		if norm(y[0:3]) <= p.FM.Body.Radius {
			level.Info(logger).Log("msg", "impact with central body", "epoch", epoch)
			res.Impacted = true
			res.ImpactEpoch = epoch
			return res, nil
		}
		if adaptive && errEst > 0 {
			h = stepClamp(0.9*h*math.Pow(cfg.Tolerance/errEst, 1./8), hMin, hMax)
		}
	}
	level.Debug(logger).Log("msg", "propagation complete", "states", eph.Len())
	return res, nil
}

// record appends an accepted state and notifies the progress hooks.
func (p *Propagator) record(res *Result, epoch time.Time, y []float64, frac float64) error {
	s := State{DT: epoch, Frame: FrameInertial}
	copy(s.R[:], y[0:3])
	copy(s.V[:], y[3:6])
	if err := res.Ephemeris.Append(s); err != nil {
		return err
	}
	if p.cfg.Progress != nil {
		p.cfg.Progress(epoch, frac)
	}
	if p.cfg.History != nil {
		select {
		case p.cfg.History <- s:
		default:
		}
	}
	return nil
}

// failure wraps a sentinel with the last accepted state for diagnostics.
func (p *Propagator) failure(res *Result, sentinel error) error {
	perr := &PropagationError{Err: sentinel}
	if last, ok := res.Ephemeris.Last(); ok {
		perr.LastEpoch = last.DT
		perr.LastRNorm = norm(last.R[:])
	}
	return perr
}

func stepClamp(h, hMin, hMax float64) float64 {
	if h < hMin {
		return hMin
	}
	if h > hMax {
		return hMax
	}
	return h
}

// PropagateConstellation propagates several orbits concurrently under the
// same force model and configuration. Results are indexed like the input
// orbits; the first error encountered is returned, with every result still
// holding its partial ephemeris.
func PropagateConstellation(ctx context.Context, orbits []*Orbit, fm ForceModel, cfg PropagationConfig, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = min(len(orbits), 8)
	}
	results := make([]*Result, len(orbits))
	errs := make([]error, len(orbits))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				prop := NewPropagator(orbits[i], fm, cfg)
				results[i], errs[i] = prop.Propagate(ctx)
			}
		}()
	}
	for i := range orbits {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
