package geometry

import (
	"math"
	"testing"

	"github.com/cjeanneret/skytrack/internal/config"
)

func newStepsConfig(stepsPerRev, microstepping int, tiltSign int) *config.Config {
	return &config.Config{
		PanStepper: config.StepperConfig{
			StepsPerRev:   stepsPerRev,
			Microstepping: microstepping,
		},
		TiltStepper: config.StepperConfig{
			StepsPerRev:   stepsPerRev,
			Microstepping: microstepping,
		},
		Tracking: config.TrackingConfig{TiltSign: tiltSign},
	}
}

func TestStepsCalculator_KnownConfig(t *testing.T) {
	// 200 steps/rev * 16 microstepping = 3200 microsteps/rev
	// stepsPerDegree = 3200 / 360 ≈ 8.888...
	cfg := newStepsConfig(200, 16, 1)
	sc := NewStepsCalculator(cfg)

	spd := 3200.0 / 360.0 // steps per degree
	cases := []struct {
		name  string
		angle float64
		want  int
	}{
		{"90_degrees", 90, int(math.Round(90 * spd))},
		{"negative_90", -90, int(math.Round(-90 * spd))},
		{"zero", 0, 0},
		{"full_360", 360, 3200},
		{"small_1_degree", 1, 9},
	}
	for _, tc := range cases {
		t.Run("Pan_"+tc.name, func(t *testing.T) {
			got := sc.PanStepsFromAngle(tc.angle)
			if got != tc.want {
				t.Errorf("PanStepsFromAngle(%v) = %d, want %d", tc.angle, got, tc.want)
			}
		})
		t.Run("Tilt_"+tc.name, func(t *testing.T) {
			got := sc.TiltStepsFromAngle(tc.angle)
			if got != tc.want {
				t.Errorf("TiltStepsFromAngle(%v) = %d, want %d", tc.angle, got, tc.want)
			}
		})
	}
}

func TestStepsCalculator_TiltSign(t *testing.T) {
	sc := NewStepsCalculator(newStepsConfig(200, 16, -1))
	if got := sc.TiltStepsFromAngle(90); got != -800 {
		t.Errorf("TiltStepsFromAngle(90) with sign -1 = %d, want -800", got)
	}
	if got := sc.PanStepsFromAngle(90); got != 800 {
		t.Errorf("pan must ignore tilt_sign, got %d", got)
	}
}

func TestStepsCalculator_GearedMount(t *testing.T) {
	cfg := &config.Config{
		PanStepper:  config.StepperConfig{StepsPerRev: 200, Microstepping: 8, GearRatio: 180.0 / 14.0},
		TiltStepper: config.StepperConfig{StepsPerRev: 200, Microstepping: 8, GearRatio: 84.0 / 14.0},
		Tracking:    config.TrackingConfig{TiltSign: 1},
	}
	sc := NewStepsCalculator(cfg)

	// 0.0175 deg per pan step, 0.0375 deg per tilt step.
	if got := sc.PanStepsFromAngle(1.75); got != 100 {
		t.Errorf("pan 1.75 deg = %d steps, want 100", got)
	}
	if got := sc.TiltStepsFromAngle(3.75); got != 100 {
		t.Errorf("tilt 3.75 deg = %d steps, want 100", got)
	}
}

func TestAxis_RoundTrip(t *testing.T) {
	a := Axis{DegPerStep: 0.0175, Sign: -1}
	for _, steps := range []int{-500, -1, 0, 1, 777} {
		if got := a.Steps(a.Degrees(steps)); got != steps {
			t.Errorf("Steps(Degrees(%d)) = %d", steps, got)
		}
	}
	if (Axis{}).Steps(10) != 0 {
		t.Error("zero axis should not produce steps")
	}
}
