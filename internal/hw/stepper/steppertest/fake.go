// Package steppertest provides an in-memory stepper.Motor for tests.
package steppertest

import "github.com/cjeanneret/skytrack/internal/hw/stepper"

// Fake is a stepper.Motor that steps instantly. RunSpeed always takes a
// step when the speed is non-zero.
type Fake struct {
	Pos    int
	Target int
	Spd    float64

	Steps   int   // total steps taken
	Moves   []int // relative moves completed by RunToPosition
	Stops   int
	Enabled bool

	// OnStep runs after every RunSpeed step with the new position.
	OnStep func(pos int)
	// Err is returned by RunSpeed and RunToPosition when set.
	Err error
}

var _ stepper.Motor = (*Fake)(nil)

func (f *Fake) SetSpeed(s float64) { f.Spd = s }

func (f *Fake) Speed() float64 { return f.Spd }

func (f *Fake) RunSpeed() (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	if f.Spd == 0 {
		return false, nil
	}
	if f.Spd > 0 {
		f.Pos++
	} else {
		f.Pos--
	}
	f.Steps++
	if f.OnStep != nil {
		f.OnStep(f.Pos)
	}
	return true, nil
}

func (f *Fake) MoveRelative(d int) { f.Target = f.Pos + d }

func (f *Fake) RunToPosition() error {
	if f.Err != nil {
		return f.Err
	}
	d := f.Target - f.Pos
	if d == 0 {
		return nil
	}
	f.Moves = append(f.Moves, d)
	if d < 0 {
		f.Steps -= d
	} else {
		f.Steps += d
	}
	f.Pos = f.Target
	return nil
}

func (f *Fake) CurrentPosition() int { return f.Pos }

func (f *Fake) SetCurrentPosition(p int) {
	f.Pos = p
	f.Target = p
}

func (f *Fake) Stop() {
	f.Spd = 0
	f.Target = f.Pos
	f.Stops++
}

func (f *Fake) Enable() error {
	f.Enabled = true
	return nil
}

func (f *Fake) Disable() error {
	f.Enabled = false
	return nil
}
