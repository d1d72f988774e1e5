package astrokit

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the propagation and coverage engine. All are detected
// either before any integration begins (input validation) or terminate the
// run they occur in; nothing here is retried internally.
var (
	// ErrDegenerateOrbit flags orbital elements outside the elliptical
	// formulation: eccentricity not in [0,1) or a non-positive semi-major axis.
	ErrDegenerateOrbit = errors.New("degenerate orbit")
	// ErrConvergence flags a Kepler equation solution which did not reach the
	// required angular residual within the iteration cap.
	ErrConvergence = errors.New("anomaly solver did not converge")
	// ErrStepSizeCollapse flags an adaptive integrator whose step size
	// underflowed its floor for too many consecutive rejections.
	ErrStepSizeCollapse = errors.New("integrator step size collapsed")
	// ErrInvalidElementSet flags a mean element set outside the validity
	// range of the analytical propagator.
	ErrInvalidElementSet = errors.New("element set outside model validity")
	// ErrCancelled reports cooperative cancellation. Partial results are
	// still returned alongside it.
	ErrCancelled = errors.New("cancelled")
	// ErrTimeRange flags a propagation or coverage window whose end does not
	// follow its start.
	ErrTimeRange = errors.New("malformed time range")
	// ErrDecayed flags an analytically propagated trajectory which dropped
	// below the surface of the central body.
	ErrDecayed = errors.New("orbit decayed")
)

// PropagationError carries the last epoch and radius reached when a
// propagation run fails numerically, so callers can inspect how far it got.
type PropagationError struct {
	Err       error
	LastEpoch time.Time
	LastRNorm float64
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed at %s (r=%.3f km): %s", e.LastEpoch.Format(time.RFC3339), e.LastRNorm, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }
