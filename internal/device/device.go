// Package device interprets protocol commands on the mount controller.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/skytrack/internal/clock"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/follower"
	"github.com/cjeanneret/skytrack/internal/logic/geometry"
	"github.com/cjeanneret/skytrack/internal/logic/motion"
	"github.com/cjeanneret/skytrack/internal/logic/trajectory"
	"github.com/cjeanneret/skytrack/internal/protocol"
)

// Calibrator performs the blocking homing sequence. homing.Calibrator
// implements it.
type Calibrator interface {
	Run() (geometry.Reference, error)
}

// Device owns every motor. All methods must be called from the single
// loop goroutine (Run does this).
type Device struct {
	motion   *motion.Controller
	follower *follower.Follower
	homing   Calibrator
	clock    *clock.DeviceClock

	// IdleTick paces the loop while nothing is moving.
	IdleTick time.Duration
	// BusyTick paces the loop while following or jogging. It must stay
	// well under the step interval at the highest speed.
	BusyTick time.Duration

	loading bool
	ref     geometry.Reference
	homed   bool
}

func New(m *motion.Controller, f *follower.Follower, cal Calibrator, clk *clock.DeviceClock) *Device {
	return &Device{
		motion:   m,
		follower: f,
		homing:   cal,
		clock:    clk,
		IdleTick: 10 * time.Millisecond,
		BusyTick: 200 * time.Microsecond,
	}
}

// Reference returns the calibration reference once HOME has succeeded.
func (d *Device) Reference() (geometry.Reference, bool) { return d.ref, d.homed }

// HandleLine parses and applies one protocol line.
func (d *Device) HandleLine(line string) error {
	c, err := protocol.Parse(line)
	if err != nil {
		return err
	}
	debug.Command("rx", c.String())
	return d.Handle(c)
}

// Handle applies one command. HOME blocks until calibration ends.
func (d *Device) Handle(c protocol.Command) error {
	switch c.Kind {
	case protocol.KindSyncTime:
		d.clock.Sync(c.EpochMs)
		return nil

	case protocol.KindPrep:
		d.follower.Stop()
		d.motion.Stop()
		return d.motion.EnableMotors()

	case protocol.KindStep:
		return d.motion.MovePanTilt(c.DeltaPan, c.DeltaTilt)

	case protocol.KindPoint:
		if !d.loading {
			d.follower.Clear()
			d.loading = true
		}
		if !d.follower.Append(trajectory.TrackPoint{OffsetS: c.OffsetS, AzDeg: c.AzDeg, ElDeg: c.ElDeg}) {
			debug.Warn("Trajectory buffer full, point at %+.1fs dropped", c.OffsetS)
		}
		return nil

	case protocol.KindTrack:
		d.loading = false
		d.follower.SetT0(c.T0)
		if d.homed {
			dPan, dTilt := d.follower.Slew(d.ref)
			debug.Live("Slew to first point: pan %d, tilt %d", dPan, dTilt)
			if err := d.motion.MovePanTilt(dPan, dTilt); err != nil {
				return fmt.Errorf("slew: %w", err)
			}
		} else {
			debug.Warn("Not homed, following from the current orientation")
		}
		d.follower.Prepare()
		debug.Info("Tracking %d points from %s", d.follower.Len(), c.T0.UTC().Format(time.RFC3339))
		return nil

	case protocol.KindBreak:
		d.loading = false
		d.follower.Stop()
		d.motion.Stop()
		return nil

	case protocol.KindStop:
		d.motion.Stop()
		return nil

	case protocol.KindHome:
		return d.home()
	}

	dir, mode, ok := protocol.DirectionOf(c.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, c.Kind)
	}
	switch mode {
	case protocol.ModePulse:
		return d.motion.Pulse(dir)
	case protocol.ModeJog:
		return d.motion.Jog(dir)
	default:
		d.motion.StartContinuous(dir)
		return nil
	}
}

func (d *Device) home() error {
	d.follower.Stop()
	d.motion.Stop()
	if d.homing == nil {
		return fmt.Errorf("homing not configured")
	}
	ref, err := d.homing.Run()
	if err != nil {
		return fmt.Errorf("home: %w", err)
	}
	d.ref, d.homed = ref, true
	return nil
}

// Tick services the motors once: follower playback, then manual
// continuous motion. It never blocks.
func (d *Device) Tick(now time.Time) error {
	d.follower.Update(now)
	if err := d.follower.RunSteppers(); err != nil {
		return err
	}
	return d.motion.RunContinuous()
}

func (d *Device) busy() bool {
	return d.follower.IsTracking() || d.motion.Continuous() != protocol.None
}

// Run consumes lines and services the motors until ctx is cancelled or
// lines is closed. Command errors are logged and do not end the loop.
func (d *Device) Run(ctx context.Context, lines <-chan string) error {
	idle := d.IdleTick
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	busy := d.BusyTick
	if busy <= 0 || busy > idle {
		busy = idle
	}
	period := idle
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer d.halt()

	for {
		want := idle
		if d.busy() {
			want = busy
		}
		if want != period {
			period = want
			ticker.Reset(period)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := d.HandleLine(line); err != nil {
				debug.Error(err)
			}
		case <-ticker.C:
			if err := d.Tick(d.clock.Now()); err != nil {
				return fmt.Errorf("tick: %w", err)
			}
		}
	}
}

func (d *Device) halt() {
	d.follower.Stop()
	d.motion.Stop()
}
