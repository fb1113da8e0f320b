package motion

import (
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/hw/stepper"
	"github.com/cjeanneret/skytrack/internal/protocol"
)

// Enabler is implemented by motors whose driver can be switched off.
type Enabler interface {
	Enable() error
	Disable() error
}

// Options sizes the discrete and manual moves.
type Options struct {
	PulseSteps int     // steps per FRIGHT/FLEFT/FUP/FDOWN
	JogSteps   int     // steps per UP/DOWN/LEFT/RIGHT
	JogSpeed   float64 // steps/s for *_START
	TiltSign   int     // maps physical up onto the tilt motor direction
}

// Controller orchestrates pan/tilt movements via two stepper motors.
// It's an intermediate layer between the device command interpreter
// and the motors. Not safe for concurrent use.
type Controller struct {
	pan  stepper.Motor
	tilt stepper.Motor
	opts Options

	continuous protocol.Direction
}

func NewController(pan, tilt stepper.Motor, opts Options) *Controller {
	if opts.PulseSteps <= 0 {
		opts.PulseSteps = 1
	}
	if opts.TiltSign == 0 {
		opts.TiltSign = 1
	}
	return &Controller{
		pan:  pan,
		tilt: tilt,
		opts: opts,
	}
}

// Pan returns the pan motor.
func (c *Controller) Pan() stepper.Motor { return c.pan }

// Tilt returns the tilt motor.
func (c *Controller) Tilt() stepper.Motor { return c.tilt }

func (c *Controller) MovePan(steps int) error {
	return move(c.pan, "pan", steps)
}

func (c *Controller) MoveTilt(steps int) error {
	return move(c.tilt, "tilt", steps)
}

func move(m stepper.Motor, name string, steps int) error {
	if steps == 0 {
		return nil
	}
	dir := "forward"
	if steps < 0 {
		dir = "backward"
	}
	debug.Move(name, steps, dir)
	m.MoveRelative(steps)
	return m.RunToPosition()
}

// MovePanTilt performs a combined movement, pan first then tilt.
func (c *Controller) MovePanTilt(panSteps, tiltSteps int) error {
	if err := c.MovePan(panSteps); err != nil {
		return err
	}
	if err := c.MoveTilt(tiltSteps); err != nil {
		return err
	}
	return nil
}

// Pulse executes one tracking pulse. Directions are motor directions:
// the host already applied the tilt sign when it chose FUP or FDOWN.
func (c *Controller) Pulse(d protocol.Direction) error {
	n := d.Sign() * c.opts.PulseSteps
	if d.Pan() {
		return c.MovePan(n)
	}
	return c.MoveTilt(n)
}

// Jog executes one manual increment in the physical direction d.
func (c *Controller) Jog(d protocol.Direction) error {
	n := d.Sign() * c.opts.JogSteps
	if d.Pan() {
		return c.MovePan(n)
	}
	return c.MoveTilt(n * c.opts.TiltSign)
}

// StartContinuous sets a constant speed on the axis of d. RunContinuous
// must then be called every loop iteration until Stop.
func (c *Controller) StartContinuous(d protocol.Direction) {
	c.Stop()
	if d == protocol.None {
		return
	}
	speed := float64(d.Sign()) * c.opts.JogSpeed
	if d.Pan() {
		c.pan.SetSpeed(speed)
	} else {
		c.tilt.SetSpeed(speed * float64(c.opts.TiltSign))
	}
	c.continuous = d
	debug.Live("Continuous %s at %.0f steps/s", d, c.opts.JogSpeed)
}

// Continuous returns the running manual direction, None when idle.
func (c *Controller) Continuous() protocol.Direction { return c.continuous }

// RunContinuous steps the running axis when its step is due.
func (c *Controller) RunContinuous() error {
	if c.continuous == protocol.None {
		return nil
	}
	m := c.tilt
	if c.continuous.Pan() {
		m = c.pan
	}
	_, err := m.RunSpeed()
	return err
}

// Stop zeroes both speeds and ends any continuous move.
func (c *Controller) Stop() {
	c.pan.Stop()
	c.tilt.Stop()
	c.continuous = protocol.None
}

// EnableMotors powers both drivers when they support it.
func (c *Controller) EnableMotors() error {
	for _, m := range []stepper.Motor{c.pan, c.tilt} {
		if e, ok := m.(Enabler); ok {
			if err := e.Enable(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisableMotors releases both drivers (no holding torque).
func (c *Controller) DisableMotors() error {
	for _, m := range []stepper.Motor{c.pan, c.tilt} {
		if e, ok := m.(Enabler); ok {
			if err := e.Disable(); err != nil {
				return err
			}
		}
	}
	return nil
}
