package endstop

import (
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/hw/gpio"
)

// Switch reports whether a limit switch is asserted.
type Switch interface {
	Triggered() (bool, error)
}

// Endstop is a normally-open switch to GND on a pulled-up input:
// the pin reads LOW while the switch is pressed.
type Endstop struct {
	drv gpio.Driver
	pin int
}

// New configures pin as a pulled-up input.
func New(drv gpio.Driver, pin int) (*Endstop, error) {
	if err := drv.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, err
	}
	debug.Verbose("Endstop configured on pin %d", pin)
	return &Endstop{drv: drv, pin: pin}, nil
}

// Triggered reports true while the switch is closed.
func (e *Endstop) Triggered() (bool, error) {
	lvl, err := e.drv.ReadPin(e.pin)
	if err != nil {
		return false, err
	}
	return lvl == gpio.Low, nil
}
