package astrokit

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// State is a position/velocity sample of a trajectory at a given epoch.
type State struct {
	DT    time.Time
	R, V  [3]float64 // km and km/s
	Frame Frame
}

// Orbit rebuilds the osculating orbital elements of this state around the
// given body.
func (s State) Orbit(body CelestialObject) *Orbit {
	return NewOrbitFromRV(s.R[:], s.V[:], body)
}

// Ephemeris is a time-ordered sequence of states. Appends must be strictly
// increasing in epoch; queries between samples are served by cubic Hermite
// interpolation on each component.
type Ephemeris struct {
	Frame  Frame
	states []State
}

// NewEphemeris returns an empty ephemeris in the given frame.
func NewEphemeris(frame Frame) *Ephemeris {
	return &Ephemeris{Frame: frame}
}

// Len returns the number of stored states.
func (e *Ephemeris) Len() int { return len(e.states) }

// Start returns the epoch of the first state, or the zero time if empty.
func (e *Ephemeris) Start() time.Time {
	if len(e.states) == 0 {
		return time.Time{}
	}
	return e.states[0].DT
}

// End returns the epoch of the last state, or the zero time if empty.
func (e *Ephemeris) End() time.Time {
	if len(e.states) == 0 {
		return time.Time{}
	}
	return e.states[len(e.states)-1].DT
}

// Last returns the most recent state and whether one exists.
func (e *Ephemeris) Last() (State, bool) {
	if len(e.states) == 0 {
		return State{}, false
	}
	return e.states[len(e.states)-1], true
}

// States returns the stored states. The slice must not be mutated.
func (e *Ephemeris) States() []State { return e.states }

// Append adds a state. It fails if the epoch does not strictly increase or
// the frame differs from the ephemeris frame.
func (e *Ephemeris) Append(s State) error {
	if s.Frame != e.Frame {
		return fmt.Errorf("state in frame %s, ephemeris in frame %s", s.Frame, e.Frame)
	}
	if len(e.states) > 0 && !s.DT.After(e.states[len(e.states)-1].DT) {
		return fmt.Errorf("epoch %s does not increase past %s", s.DT, e.states[len(e.states)-1].DT)
	}
	e.states = append(e.states, s)
	return nil
}

// At returns the state at the given epoch, interpolating between samples
// with a cubic Hermite on each position and velocity component. It fails
// with ErrTimeRange outside [Start, End].
func (e *Ephemeris) At(dt time.Time) (State, error) {
	n := len(e.states)
	if n == 0 || dt.Before(e.states[0].DT) || dt.After(e.states[n-1].DT) {
		return State{}, fmt.Errorf("epoch %s outside ephemeris span: %w", dt, ErrTimeRange)
	}
	// Binary search for the bracketing segment.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if e.states[mid].DT.After(dt) {
			hi = mid
		} else {
			lo = mid
		}
	}
	s0, s1 := e.states[lo], e.states[hi]
	if dt.Equal(s0.DT) {
		return s0, nil
	}
	if dt.Equal(s1.DT) {
		return s1, nil
	}
	h := s1.DT.Sub(s0.DT).Seconds()
	τ := dt.Sub(s0.DT).Seconds() / h
	out := State{DT: dt, Frame: e.Frame}
	for i := 0; i < 3; i++ {
		out.R[i], out.V[i] = hermite(s0.R[i], s0.V[i], s1.R[i], s1.V[i], τ, h)
	}
	return out, nil
}

// hermite evaluates the cubic Hermite interpolant of (p0, v0) -> (p1, v1)
// over a segment of duration h, at normalized time τ in [0,1]. It returns
// both the value and its derivative, which for position components is the
// interpolated velocity.
func hermite(p0, v0, p1, v1, τ, h float64) (p, v float64) {
	τ2 := τ * τ
	τ3 := τ2 * τ
	h00 := 2*τ3 - 3*τ2 + 1
	h10 := τ3 - 2*τ2 + τ
	h01 := -2*τ3 + 3*τ2
	h11 := τ3 - τ2
	p = h00*p0 + h10*h*v0 + h01*p1 + h11*h*v1
	d00 := 6*τ2 - 6*τ
	d10 := 3*τ2 - 4*τ + 1
	d01 := -6*τ2 + 6*τ
	d11 := 3*τ2 - 2*τ
	v = (d00*p0+d01*p1)/h + d10*v0 + d11*v1
	return
}

// StreamStates sends every stored state on a freshly opened channel and
// closes it when the ephemeris is exhausted.
func (e *Ephemeris) StreamStates() <-chan State {
	ch := make(chan State, 64)
	go func() {
		for _, s := range e.states {
			ch <- s
		}
		close(ch)
	}()
	return ch
}

const dtFormat = "2006-01-02T15:04:05.000000"

// WriteOEM writes this ephemeris as a CCSDS Orbit Ephemeris Message.
func (e *Ephemeris) WriteOEM(w io.Writer, objectName string) error {
	if len(e.states) == 0 {
		return fmt.Errorf("cannot export an empty ephemeris")
	}
	buf := bufio.NewWriter(w)
	fmt.Fprintln(buf, "CCSDS_OEM_VERS = 2.0")
	fmt.Fprintf(buf, "CREATION_DATE = %s\n", time.Now().UTC().Format(dtFormat))
	fmt.Fprintln(buf, "ORIGINATOR = astrokit")
	fmt.Fprintln(buf, "META_START")
	fmt.Fprintf(buf, "OBJECT_NAME = %s\n", objectName)
	fmt.Fprintf(buf, "OBJECT_ID = %s\n", objectName)
	fmt.Fprintln(buf, "CENTER_NAME = EARTH")
	if e.Frame == FrameBodyFixed {
		fmt.Fprintln(buf, "REF_FRAME = ITRF-93")
	} else {
		fmt.Fprintln(buf, "REF_FRAME = EME2000")
	}
	fmt.Fprintln(buf, "TIME_SYSTEM = UTC")
	fmt.Fprintf(buf, "START_TIME = %s\n", e.Start().UTC().Format(dtFormat))
	fmt.Fprintf(buf, "STOP_TIME = %s\n", e.End().UTC().Format(dtFormat))
	fmt.Fprintln(buf, "META_STOP")
	for _, s := range e.states {
		fmt.Fprintf(buf, "%s %f %f %f %f %f %f\n", s.DT.UTC().Format(dtFormat),
			s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2])
	}
	return buf.Flush()
}

// WriteCSV writes this ephemeris as comma separated values with a header.
func (e *Ephemeris) WriteCSV(w io.Writer) error {
	buf := bufio.NewWriter(w)
	fmt.Fprintln(buf, "epoch,rx_km,ry_km,rz_km,vx_km_s,vy_km_s,vz_km_s")
	for _, s := range e.states {
		fmt.Fprintf(buf, "%s,%f,%f,%f,%f,%f,%f\n", s.DT.UTC().Format(dtFormat),
			s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2])
	}
	return buf.Flush()
}
