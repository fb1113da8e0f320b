// Command skytrack-device runs on the mount: it listens for protocol lines
// and drives the two steppers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cjeanneret/skytrack/internal/clock"
	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/device"
	"github.com/cjeanneret/skytrack/internal/hw/endstop"
	"github.com/cjeanneret/skytrack/internal/hw/gpio"
	"github.com/cjeanneret/skytrack/internal/hw/sensor"
	"github.com/cjeanneret/skytrack/internal/hw/stepper"
	"github.com/cjeanneret/skytrack/internal/logic/follower"
	"github.com/cjeanneret/skytrack/internal/logic/geometry"
	"github.com/cjeanneret/skytrack/internal/logic/homing"
	"github.com/cjeanneret/skytrack/internal/logic/motion"
	"github.com/cjeanneret/skytrack/internal/protocol"
	"github.com/cjeanneret/skytrack/internal/transport"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	home := flag.Bool("home", false, "run the homing sequence before accepting commands")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Building mount")
	dev, err := buildDevice(cfg, gpioDriver)
	if err != nil {
		// A missing orientation sensor is terminal: nothing can be aimed.
		log.Fatalf("init mount failed: %v", err)
	}

	if *home {
		if err := dev.Handle(protocol.Simple(protocol.KindHome)); err != nil {
			log.Fatalf("homing failed: %v", err)
		}
	}

	debug.Step(3, "Waiting for commands")
	lines := make(chan string, 64)
	errCh := make(chan error, 1)
	go func() {
		err := serveLines(ctx, cfg, os.Stdin, lines)
		if err != nil {
			cancel()
		}
		errCh <- err
	}()

	runErr := dev.Run(ctx, lines)
	cancel()
	if err := <-errCh; err != nil {
		log.Printf("command source: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("device loop: %v", runErr)
	}
}

// buildDevice wires steppers, endstops, the sensor and the calibrator.
func buildDevice(cfg *config.Config, g gpio.Driver) (*device.Device, error) {
	stepDelay := cfg.HomingStepDelay()
	pan := stepper.NewStepper(g, stepperConfig(cfg.PanStepper, stepDelay))
	tilt := stepper.NewStepper(g, stepperConfig(cfg.TiltStepper, stepDelay))
	debug.PrintStruct("Pan stepper config", cfg.PanStepper)
	debug.PrintStruct("Tilt stepper config", cfg.TiltStepper)

	panStop, err := endstop.New(g, cfg.PanStepper.EndstopPin)
	if err != nil {
		return nil, fmt.Errorf("pan endstop: %w", err)
	}
	tiltStop, err := endstop.New(g, cfg.TiltStepper.EndstopPin)
	if err != nil {
		return nil, fmt.Errorf("tilt endstop: %w", err)
	}

	orient, err := newSensor(cfg.Sensor)
	if err != nil {
		return nil, err
	}

	steps := geometry.NewStepsCalculator(cfg)
	cal := homing.New(pan, tilt, panStop, tiltStop, orient, homing.Config{
		Speed:        cfg.Homing.Speed,
		BackoffSteps: cfg.Homing.BackoffSteps,
		MaxSteps:     cfg.Homing.MaxSteps,
		Target:       geometry.Reference{AzDeg: cfg.Homing.TargetAzDeg, ElDeg: cfg.Homing.TargetElDeg},
		Pan:          steps.PanAxis(),
		Tilt:         steps.TiltAxis(),
	})
	cal.OnState = func(s homing.State) { debug.Live("Homing: %s", s) }
	if err := cal.Begin(); err != nil {
		return nil, err
	}

	ctrl := motion.NewController(pan, tilt, motion.Options{
		PulseSteps: cfg.Tracking.PulseSteps,
		JogSteps:   cfg.Manual.JogSteps,
		JogSpeed:   cfg.Manual.Speed,
		TiltSign:   cfg.Tracking.TiltSign,
	})
	fol := follower.New(pan, tilt, follower.Config{
		Pan:       steps.PanAxis(),
		Tilt:      steps.TiltAxis(),
		Capacity:  cfg.Tracking.BufferCapacity,
		PanSpeed:  cfg.Tracking.PanSpeed,
		TiltSpeed: cfg.Tracking.TiltSpeed,
	})
	return device.New(ctrl, fol, cal, clock.NewDeviceClock()), nil
}

func stepperConfig(s config.StepperConfig, delay time.Duration) stepper.Config {
	return stepper.Config{
		StepPin:       s.StepPin,
		DirPin:        s.DirPin,
		EnablePin:     s.EnablePin,
		StepsPerRev:   s.StepsPerRev,
		Microstepping: s.Microstepping,
		StepDelay:     delay,
		InvertDir:     s.InvertDir,
	}
}

// newSensor selects the orientation sensor implementation.
func newSensor(s config.SensorConfig) (sensor.Orientation, error) {
	switch s.Type {
	case "static":
		return sensor.NewStatic(s.Mag, s.Accel, s.Absent), nil
	default:
		return nil, fmt.Errorf("unsupported sensor type: %s", s.Type)
	}
}

// serveLines feeds lines from the configured transport: a TCP listener on
// transport.addr, an MQTT subscription, or stdin for a serial bridge.
func serveLines(ctx context.Context, cfg *config.Config, stdin io.Reader, out chan<- string) error {
	t := cfg.Transport
	switch t.Type {
	case "tcp":
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", t.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", t.Addr, err)
		}
		debug.Info("Listening for commands on %s", ln.Addr())
		return transport.ServeTCP(ctx, ln, out)
	case "mqtt":
		client, err := transport.Connect(t.Broker, t.ClientID+"-device", cfg.EphemerisTimeout())
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		if err := transport.MQTTSubscribe(client, t.Topic, cfg.EphemerisTimeout(), out); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	case "stdout":
		return transport.ReadLines(ctx, stdin, out)
	default:
		return fmt.Errorf("unsupported transport type: %s", t.Type)
	}
}
