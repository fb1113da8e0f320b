// Package homing finds the mechanical zero of both axes and moves the
// mount to a known absolute orientation.
package homing

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/hw/endstop"
	"github.com/cjeanneret/skytrack/internal/hw/sensor"
	"github.com/cjeanneret/skytrack/internal/hw/stepper"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/geometry"
)

var (
	// ErrSensorInit means the orientation sensors did not start. No motion
	// is allowed afterwards.
	ErrSensorInit = errors.New("orientation sensor init failed")
	// ErrEndstopNotFound means an axis ran MaxSteps without hitting its switch.
	ErrEndstopNotFound = errors.New("endstop not reached")
	// ErrNotReady means Run was called without a successful Begin.
	ErrNotReady = errors.New("calibrator not initialised")
)

// State is the calibration progress. It only moves forward.
type State int

const (
	StateInit State = iota
	StateHomePan
	StateHomeTilt
	StateBackoff
	StateReposition
	StateDone
	StateFailed
)

var stateNames = [...]string{"init", "home_pan", "home_tilt", "backoff", "reposition", "done", "failed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Config holds the homing constants.
type Config struct {
	Speed        float64 // steps/s toward the endstops
	BackoffSteps int
	MaxSteps     int // 0 = unbounded
	Target       geometry.Reference
	Pan          geometry.Axis
	Tilt         geometry.Axis // Sign maps elevation onto the motor
}

// Calibrator runs Init -> HomePan -> HomeTilt -> Backoff -> Reposition -> Done.
type Calibrator struct {
	pan, tilt         stepper.Motor
	panStop, tiltStop endstop.Switch
	sensor            sensor.Orientation
	cfg               Config

	state State
	ready bool

	// OnState is called on every transition.
	OnState func(State)
}

func New(pan, tilt stepper.Motor, panStop, tiltStop endstop.Switch, s sensor.Orientation, cfg Config) *Calibrator {
	return &Calibrator{
		pan:      pan,
		tilt:     tilt,
		panStop:  panStop,
		tiltStop: tiltStop,
		sensor:   s,
		cfg:      cfg,
	}
}

// State returns the current state.
func (c *Calibrator) State() State { return c.state }

func (c *Calibrator) enter(s State) {
	c.state = s
	debug.Live("Homing: %s", s)
	if c.OnState != nil {
		c.OnState(s)
	}
}

func (c *Calibrator) fail(err error) error {
	c.enter(StateFailed)
	debug.Error(err)
	return err
}

// Begin initialises the orientation sensors. A failure is terminal.
func (c *Calibrator) Begin() error {
	if c.state == StateFailed {
		return ErrSensorInit
	}
	if err := c.sensor.Begin(); err != nil {
		c.ready = false
		return c.fail(fmt.Errorf("%w: %v", ErrSensorInit, err))
	}
	c.ready = true
	debug.Info("Orientation sensors ready")
	return nil
}

// Run performs the full sequence, blocking until done. On success both
// motor positions read zero at the returned reference.
func (c *Calibrator) Run() (geometry.Reference, error) {
	if !c.ready || c.state == StateFailed {
		return geometry.Reference{}, ErrNotReady
	}
	debug.Summary("Homing")
	c.enter(StateInit)

	c.enter(StateHomePan)
	n, err := c.homeAxis(c.pan, c.panStop)
	if err != nil {
		return geometry.Reference{}, c.fail(fmt.Errorf("pan: %w", err))
	}
	debug.Info("Pan homed after %d steps", n)

	c.enter(StateHomeTilt)
	n, err = c.homeAxis(c.tilt, c.tiltStop)
	if err != nil {
		return geometry.Reference{}, c.fail(fmt.Errorf("tilt: %w", err))
	}
	debug.Info("Tilt homed after %d steps", n)

	c.enter(StateBackoff)
	if err := c.backoff(); err != nil {
		return geometry.Reference{}, c.fail(fmt.Errorf("backoff: %w", err))
	}

	c.enter(StateReposition)
	if err := c.reposition(); err != nil {
		return geometry.Reference{}, c.fail(fmt.Errorf("reposition: %w", err))
	}

	c.pan.SetCurrentPosition(0)
	c.tilt.SetCurrentPosition(0)
	c.enter(StateDone)
	debug.Info("Calibration reference az=%.2f el=%.2f", c.cfg.Target.AzDeg, c.cfg.Target.ElDeg)
	return c.cfg.Target, nil
}

// homeAxis runs m at the homing speed until sw closes, then zeroes the
// position. It busy-waits and returns the number of steps taken.
func (c *Calibrator) homeAxis(m stepper.Motor, sw endstop.Switch) (int, error) {
	m.SetSpeed(c.cfg.Speed)
	defer m.SetSpeed(0)
	steps := 0
	for {
		hit, err := sw.Triggered()
		if err != nil {
			return steps, err
		}
		if hit {
			break
		}
		if c.cfg.MaxSteps > 0 && steps >= c.cfg.MaxSteps {
			return steps, fmt.Errorf("%w after %d steps", ErrEndstopNotFound, steps)
		}
		stepped, err := m.RunSpeed()
		if err != nil {
			return steps, err
		}
		if stepped {
			steps++
		}
	}
	m.SetCurrentPosition(0)
	return steps, nil
}

func (c *Calibrator) backoff() error {
	debug.Verbose("Backoff %d steps", c.cfg.BackoffSteps)
	c.pan.MoveRelative(-c.cfg.BackoffSteps)
	c.tilt.MoveRelative(-c.cfg.BackoffSteps)
	if err := c.pan.RunToPosition(); err != nil {
		return err
	}
	return c.tilt.RunToPosition()
}

// RepositionDeltas returns the moves from the sensed orientation to the
// target. Azimuth always turns in the negative sense, away from the pan
// endstop, so the result is in (-360,0].
func RepositionDeltas(currAz, currEl float64, target geometry.Reference) (dAz, dEl float64) {
	raw := math.Mod(target.AzDeg-currAz+360, 360)
	if raw < 0 {
		raw += 360
	}
	if raw > 0 {
		raw -= 360
	}
	return raw, target.ElDeg - currEl
}

func (c *Calibrator) reposition() error {
	heading, err := c.sensor.ReadHeadingDeg()
	if err != nil {
		return err
	}
	acc, err := c.sensor.ReadAcceleration()
	if err != nil {
		return err
	}
	el := sensor.ElevationFromGravity(acc)
	dAz, dEl := RepositionDeltas(astro.Normalize360(heading), el, c.cfg.Target)
	debug.Info("Reposition: sensed az=%.2f el=%.2f, moving AZ %.2f°, EL %.2f°", heading, el, dAz, dEl)

	c.pan.MoveRelative(c.cfg.Pan.Steps(dAz))
	if err := c.pan.RunToPosition(); err != nil {
		return err
	}
	c.tilt.MoveRelative(c.cfg.Tilt.Steps(dEl))
	return c.tilt.RunToPosition()
}
