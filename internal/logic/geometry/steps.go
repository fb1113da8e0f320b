package geometry

import (
	"math"

	"github.com/cjeanneret/skytrack/internal/config"
)

// Axis converts angles into microsteps for one mount axis.
// Sign is +1 or -1 and flips the mechanical direction.
type Axis struct {
	DegPerStep float64
	Sign       int
}

// Steps returns round(sign*deg/degPerStep).
func (a Axis) Steps(deg float64) int {
	if a.DegPerStep <= 0 {
		return 0
	}
	sign := float64(a.Sign)
	if sign == 0 {
		sign = 1
	}
	return int(math.Round(sign * deg / a.DegPerStep))
}

// Degrees is the inverse of Steps.
func (a Axis) Degrees(steps int) float64 {
	sign := float64(a.Sign)
	if sign == 0 {
		sign = 1
	}
	return sign * float64(steps) * a.DegPerStep
}

// StepsCalculator converts angles to motor step counts for both axes.
type StepsCalculator struct {
	pan  Axis
	tilt Axis
}

// NewStepsCalculator creates a step calculator from configuration.
// Pan is always positive clockwise; tilt uses tracking.tilt_sign.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	tiltSign := cfg.Tracking.TiltSign
	if tiltSign == 0 {
		tiltSign = 1
	}
	return &StepsCalculator{
		pan:  Axis{DegPerStep: cfg.PanStepper.DegreesPerStep(), Sign: 1},
		tilt: Axis{DegPerStep: cfg.TiltStepper.DegreesPerStep(), Sign: tiltSign},
	}
}

// PanAxis returns the pan conversion.
func (s *StepsCalculator) PanAxis() Axis { return s.pan }

// TiltAxis returns the tilt conversion, sign included.
func (s *StepsCalculator) TiltAxis() Axis { return s.tilt }

// PanStepsFromAngle converts a horizontal angle (in degrees) to motor steps.
func (s *StepsCalculator) PanStepsFromAngle(angleDegrees float64) int {
	return s.pan.Steps(angleDegrees)
}

// TiltStepsFromAngle converts a vertical angle (in degrees) to motor steps,
// applying the tilt sign.
func (s *StepsCalculator) TiltStepsFromAngle(angleDegrees float64) int {
	return s.tilt.Steps(angleDegrees)
}
