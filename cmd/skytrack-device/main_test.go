package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/hw/gpio"
	"github.com/cjeanneret/skytrack/internal/logic/homing"
)

func deviceConfig() *config.Config {
	axis := config.StepperConfig{StepsPerRev: 200, Microstepping: 8, GearRatio: 1}
	pan, tilt := axis, axis
	pan.StepPin, pan.DirPin, pan.EndstopPin = 17, 27, 16
	tilt.StepPin, tilt.DirPin, tilt.EndstopPin = 22, 23, 26
	return &config.Config{
		PanStepper:  pan,
		TiltStepper: tilt,
		Tracking:    config.TrackingConfig{TiltSign: -1, PulseSteps: 1, BufferCapacity: 16, PanSpeed: 1000, TiltSpeed: 500},
		Homing:      config.HomingConfig{Speed: 400, BackoffSteps: 200, MaxSteps: 10, TargetAzDeg: 180, TargetElDeg: 45, StepDelayUs: 1},
		Manual:      config.ManualConfig{JogSteps: 50, Speed: 400},
		Sensor:      config.SensorConfig{Type: "static", Mag: [3]float64{0, 1, 0}, Accel: [3]float64{0, 0, 1}},
	}
}

func TestBuildDevice_AcceptsCommands(t *testing.T) {
	dev, err := buildDevice(deviceConfig(), gpio.NewMockDriver())
	if err != nil {
		t.Fatalf("buildDevice: %v", err)
	}
	for _, line := range []string{"SYNC_TIME 1700000000000", "PREP", "STOP"} {
		if err := dev.HandleLine(line); err != nil {
			t.Errorf("HandleLine(%q): %v", line, err)
		}
	}
	if _, homed := dev.Reference(); homed {
		t.Error("device reports homed before HOME")
	}
}

func TestBuildDevice_SensorAbsent(t *testing.T) {
	cfg := deviceConfig()
	cfg.Sensor.Absent = true
	_, err := buildDevice(cfg, gpio.NewMockDriver())
	if !errors.Is(err, homing.ErrSensorInit) {
		t.Errorf("err = %v, want ErrSensorInit", err)
	}
}

func TestNewSensor_Unsupported(t *testing.T) {
	if _, err := newSensor(config.SensorConfig{Type: "bno055"}); err == nil {
		t.Error("expected error for unknown sensor type")
	}
}

func TestServeLines_Stdin(t *testing.T) {
	cfg := deviceConfig()
	cfg.Transport.Type = "stdout"
	out := make(chan string, 4)

	err := serveLines(context.Background(), cfg, strings.NewReader("PREP\n\n  STEP 1 2  \n"), out)
	if err != nil {
		t.Fatal(err)
	}
	close(out)
	var got []string
	for l := range out {
		got = append(got, l)
	}
	if len(got) != 2 || got[0] != "PREP" || got[1] != "STEP 1 2" {
		t.Errorf("lines = %q", got)
	}
}

func TestServeLines_Unsupported(t *testing.T) {
	cfg := deviceConfig()
	cfg.Transport.Type = "carrier_pigeon"
	if err := serveLines(context.Background(), cfg, nil, nil); err == nil {
		t.Error("expected error")
	}
}
