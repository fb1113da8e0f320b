package stepper

import (
	"math"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/hw/gpio"
)

// Motor is the contract of a stepper axis used by homing, manual jogging
// and the trajectory follower. Positions are in microsteps, speeds in
// steps per second (sign gives the direction).
type Motor interface {
	SetSpeed(stepsPerSec float64)
	Speed() float64
	// RunSpeed emits at most one step if the step interval for the current
	// speed has elapsed. It reports whether a step was taken.
	RunSpeed() (bool, error)
	// MoveRelative sets a target relative to the current position.
	MoveRelative(delta int)
	// RunToPosition blocks until the target set by MoveRelative is reached.
	RunToPosition() error
	CurrentPosition() int
	SetCurrentPosition(pos int)
	Stop()
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
	InvertDir     bool          // swap the DIR level for positive steps
}

// Stepper drives an A4988-style STEP/DIR driver. It is not safe for
// concurrent use; each axis is owned by one control loop.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between STEP pulse half-cycles

	pos      int
	target   int
	speed    float64
	lastStep time.Time
	dirSet   bool
	dirFwd   bool

	// Now is the time source for RunSpeed. Tests replace it.
	Now func() time.Time
}

var _ Motor = (*Stepper)(nil)

// NewStepper creates a new stepper motor controller.
// cfg.StepDelay: if 0, defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
		Now:   time.Now,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// MoveSteps moves the motor by a number of steps (positive or negative),
// blocking for the whole move.
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	forward := steps > 0
	direction := "forward"
	if !forward {
		direction = "backward"
		steps = -steps
	}

	debug.Printf("Stepper: moving %d steps (%s) on pin %d", steps, direction, s.cfg.StepPin)

	if err := s.setDirection(forward); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := s.stepPulse(); err != nil {
			return err
		}
		if forward {
			s.pos++
		} else {
			s.pos--
		}
	}
	s.target = s.pos
	return nil
}

func (s *Stepper) setDirection(forward bool) error {
	if s.dirSet && s.dirFwd == forward {
		return nil
	}
	level := gpio.Level(forward)
	if s.cfg.InvertDir {
		level = !level
	}
	if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
		return err
	}
	s.dirSet, s.dirFwd = true, forward
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// SetSpeed sets the constant speed used by RunSpeed.
func (s *Stepper) SetSpeed(stepsPerSec float64) {
	if s.speed == 0 && stepsPerSec != 0 {
		s.lastStep = time.Time{}
	}
	s.speed = stepsPerSec
}

// Speed returns the current speed in steps per second.
func (s *Stepper) Speed() float64 { return s.speed }

// RunSpeed takes one step when 1/|speed| has elapsed since the last one.
// A zero speed never steps.
func (s *Stepper) RunSpeed() (bool, error) {
	if s.speed == 0 {
		return false, nil
	}
	now := s.Now()
	interval := time.Duration(float64(time.Second) / math.Abs(s.speed))
	if !s.lastStep.IsZero() && now.Sub(s.lastStep) < interval {
		return false, nil
	}
	forward := s.speed > 0
	if err := s.setDirection(forward); err != nil {
		return false, err
	}
	if err := s.pulse(); err != nil {
		return false, err
	}
	if forward {
		s.pos++
	} else {
		s.pos--
	}
	s.lastStep = now
	return true, nil
}

// pulse emits a single minimum-width STEP pulse for RunSpeed, where the
// caller sets the cadence.
func (s *Stepper) pulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	return s.gpio.WritePin(s.cfg.StepPin, gpio.Low)
}

// MoveRelative sets the target position relative to the current one.
func (s *Stepper) MoveRelative(delta int) {
	s.target = s.pos + delta
}

// RunToPosition blocks until the target position is reached.
func (s *Stepper) RunToPosition() error {
	return s.MoveSteps(s.target - s.pos)
}

// CurrentPosition returns the position in steps.
func (s *Stepper) CurrentPosition() int { return s.pos }

// SetCurrentPosition redefines the current position and clears any pending target.
func (s *Stepper) SetCurrentPosition(pos int) {
	s.pos = pos
	s.target = pos
}

// Stop zeroes the speed and drops any pending target.
func (s *Stepper) Stop() {
	s.speed = 0
	s.target = s.pos
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
