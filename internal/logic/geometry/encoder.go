package geometry

import (
	"math"
	"time"

	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/trajectory"
)

// Reference is the orientation at which both step counters read zero,
// i.e. where homing left the mount.
type Reference struct {
	AzDeg float64
	ElDeg float64
}

// StepCommand is the per-sample motion: a relative move in microsteps due
// at T0 + OffsetMs.
type StepCommand struct {
	OffsetMs  int64
	DeltaPan  int
	DeltaTilt int
}

// Due returns the absolute instant of c.
func (c StepCommand) Due(t0 time.Time) time.Time {
	return t0.Add(time.Duration(c.OffsetMs) * time.Millisecond)
}

// State is everything needed to continue encoding mid-path.
type State struct {
	ExecutedPan  int
	ExecutedTilt int
	Anchored     bool
	AnchorAzDeg  float64
	AnchorElDeg  float64
	SlewPan      int
	SlewTilt     int
}

// Encoder turns track points into relative step commands. Cumulative
// targets are rounded from the absolute angle, never from the previous
// delta, so the executed position stays within half a step of the path.
//
// The first point is always reached by a slew measured from the
// reference. With anchorOnFirst, later targets are measured from that
// first point (drift is corrected against the session start); otherwise
// every target is measured from the reference.
type Encoder struct {
	pan, tilt     Axis
	ref           Reference
	anchorOnFirst bool
	st            State
}

// NewEncoder returns an encoder with zeroed counters.
func NewEncoder(pan, tilt Axis, ref Reference, anchorOnFirst bool) *Encoder {
	return &Encoder{pan: pan, tilt: tilt, ref: ref, anchorOnFirst: anchorOnFirst}
}

// NewEncoderFromConfig wires axes, reference and origin mode from cfg.
func NewEncoderFromConfig(cfg *config.Config) *Encoder {
	sc := NewStepsCalculator(cfg)
	ref := Reference{AzDeg: cfg.Homing.TargetAzDeg, ElDeg: cfg.Homing.TargetElDeg}
	return NewEncoder(sc.PanAxis(), sc.TiltAxis(), ref, cfg.Tracking.Origin != config.OriginCalibration)
}

// Reset zeroes the counters and forgets the anchor.
func (e *Encoder) Reset() { e.st = State{} }

// State returns a copy of the encoder progress.
func (e *Encoder) State() State { return e.st }

// Resume restores progress saved with State.
func (e *Encoder) Resume(s State) { e.st = s }

// Targets returns the cumulative pan/tilt step targets for a direction.
func (e *Encoder) Targets(azDeg, elDeg float64) (pan, tilt int) {
	if !e.st.Anchored {
		e.st.Anchored = true
		e.st.AnchorAzDeg, e.st.AnchorElDeg = azDeg, elDeg
		e.st.SlewPan = e.pan.Steps(astro.Diff180(azDeg, e.ref.AzDeg))
		e.st.SlewTilt = e.tilt.Steps(elDeg - e.ref.ElDeg)
	}
	if !e.anchorOnFirst {
		return e.pan.Steps(astro.Diff180(azDeg, e.ref.AzDeg)), e.tilt.Steps(elDeg - e.ref.ElDeg)
	}
	return e.st.SlewPan + e.pan.Steps(astro.Diff180(azDeg, e.st.AnchorAzDeg)),
		e.st.SlewTilt + e.tilt.Steps(elDeg-e.st.AnchorElDeg)
}

// Next encodes one point and advances the executed counters.
func (e *Encoder) Next(p trajectory.TrackPoint) StepCommand {
	wantPan, wantTilt := e.Targets(p.AzDeg, p.ElDeg)
	cmd := StepCommand{
		OffsetMs:  int64(math.Round(p.OffsetS * 1000)),
		DeltaPan:  wantPan - e.st.ExecutedPan,
		DeltaTilt: wantTilt - e.st.ExecutedTilt,
	}
	e.st.ExecutedPan += cmd.DeltaPan
	e.st.ExecutedTilt += cmd.DeltaTilt
	return cmd
}

// Encode runs Next over points in order.
func (e *Encoder) Encode(points []trajectory.TrackPoint) []StepCommand {
	out := make([]StepCommand, len(points))
	for i, p := range points {
		out[i] = e.Next(p)
	}
	if len(out) > 0 {
		debug.Verbose("Encoded %d commands: slew pan=%d tilt=%d, executed pan=%d tilt=%d",
			len(out), out[0].DeltaPan, out[0].DeltaTilt, e.st.ExecutedPan, e.st.ExecutedTilt)
	}
	return out
}
