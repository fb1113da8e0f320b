// Package follower plays a loaded trajectory on the device by commanding
// constant motor speeds instead of discrete pulses.
package follower

import (
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/hw/stepper"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/geometry"
	"github.com/cjeanneret/skytrack/internal/logic/trajectory"
)

// Config holds the axis conversions and speed constants.
type Config struct {
	Pan       geometry.Axis
	Tilt      geometry.Axis
	Capacity  int
	PanSpeed  float64 // steps/s
	TiltSpeed float64
}

// Follower owns the trajectory buffer and the playback state. It is
// driven by the device loop and is not safe for concurrent use.
type Follower struct {
	pan, tilt stepper.Motor
	cfg       Config
	buf       *trajectory.Buffer
	enc       *geometry.Encoder
	t0        time.Time
	active    bool
}

func New(pan, tilt stepper.Motor, cfg Config) *Follower {
	return &Follower{
		pan:  pan,
		tilt: tilt,
		cfg:  cfg,
		buf:  trajectory.NewBuffer(cfg.Capacity),
	}
}

// Load replaces the trajectory and T0. Excess points are dropped.
func (f *Follower) Load(points []trajectory.TrackPoint, t0 time.Time) int {
	n := f.buf.Load(points)
	f.t0 = t0
	debug.Info("Follower loaded %d/%d points, T0=%s", n, len(points), t0.UTC().Format(time.RFC3339))
	return n
}

// Append adds one uploaded point; it reports false when the buffer is full.
func (f *Follower) Append(p trajectory.TrackPoint) bool {
	return f.buf.Append(p)
}

// Clear empties the buffer and stops.
func (f *Follower) Clear() {
	f.Stop()
	f.buf.Reset()
}

// SetT0 sets the session start for points uploaded with Append.
func (f *Follower) SetT0(t0 time.Time) { f.t0 = t0 }

// T0 returns the session start.
func (f *Follower) T0() time.Time { return f.t0 }

// Len returns the number of loaded points.
func (f *Follower) Len() int { return f.buf.Len() }

// Cursor returns the index of the next point to play.
func (f *Follower) Cursor() int { return f.buf.Cursor() }

// Prepare rewinds playback and arms tracking. Step targets are measured
// from the first loaded point, where the mount is expected to be.
func (f *Follower) Prepare() {
	f.buf.Rewind()
	ref := geometry.Reference{}
	if f.buf.Len() > 0 {
		first := f.buf.At(0)
		ref = geometry.Reference{AzDeg: first.AzDeg, ElDeg: first.ElDeg}
	}
	f.enc = geometry.NewEncoder(f.cfg.Pan, f.cfg.Tilt, ref, true)
	f.active = true
}

// Slew returns the relative moves that bring the motors from their
// current positions onto the first loaded point. Positions count from
// ref, where homing zeroed both motors.
func (f *Follower) Slew(ref geometry.Reference) (dPan, dTilt int) {
	if f.buf.Len() == 0 {
		return 0, 0
	}
	first := f.buf.At(0)
	pan := f.cfg.Pan.Steps(astro.Diff180(first.AzDeg, ref.AzDeg))
	tilt := f.cfg.Tilt.Steps(first.ElDeg - ref.ElDeg)
	return pan - f.pan.CurrentPosition(), tilt - f.tilt.CurrentPosition()
}

// IsTracking is true while armed and points remain.
func (f *Follower) IsTracking() bool {
	return f.active && !f.buf.Done()
}

// Update consumes every point due at now and sets the motor speeds from
// the last one. Exhaustion stops the motors.
func (f *Follower) Update(now time.Time) {
	if !f.active || f.enc == nil {
		return
	}
	for !f.buf.Done() {
		p := f.buf.At(f.buf.Cursor())
		if now.Before(p.At(f.t0)) {
			break
		}
		cmd := f.enc.Next(p)
		f.pan.SetSpeed(speedFor(cmd.DeltaPan, f.cfg.PanSpeed))
		f.tilt.SetSpeed(speedFor(cmd.DeltaTilt, f.cfg.TiltSpeed))
		debug.Verbose("Follower point %d: dPan=%d dTilt=%d", f.buf.Cursor(), cmd.DeltaPan, cmd.DeltaTilt)
		f.buf.Advance()
	}
	if f.buf.Done() {
		f.pan.SetSpeed(0)
		f.tilt.SetSpeed(0)
	}
}

func speedFor(delta int, speed float64) float64 {
	switch {
	case delta > 0:
		return speed
	case delta < 0:
		return -speed
	}
	return 0
}

// RunSteppers steps each motor whose step is due, only while tracking.
func (f *Follower) RunSteppers() error {
	if !f.IsTracking() {
		return nil
	}
	if _, err := f.pan.RunSpeed(); err != nil {
		return err
	}
	_, err := f.tilt.RunSpeed()
	return err
}

// Stop disarms tracking and zeroes both speeds. The cursor is kept.
func (f *Follower) Stop() {
	if f.active {
		debug.Info("Follower stopped at point %d/%d", f.buf.Cursor(), f.buf.Len())
	}
	f.active = false
	f.pan.SetSpeed(0)
	f.tilt.SetSpeed(0)
}
