package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/skytrack/internal/clock"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/protocol"
	"github.com/cjeanneret/skytrack/internal/transport"
)

// Metrics receives session events. metrics.Collector implements it.
type Metrics interface {
	CommandSent(kind protocol.Kind)
	DispatchLag(lag time.Duration)
	PlanBuilt(points, malformed int)
	SessionStarted()
	SessionEnded(status string)
}

type nopMetrics struct{}

func (nopMetrics) CommandSent(protocol.Kind) {}
func (nopMetrics) DispatchLag(time.Duration) {}
func (nopMetrics) PlanBuilt(int, int)        {}
func (nopMetrics) SessionStarted()           {}
func (nopMetrics) SessionEnded(string)       {}

// Scheduler dispatches a plan as discrete pulses over a link. One
// Scheduler runs one plan; its loop is the only goroutine touching the
// dispatch state.
type Scheduler struct {
	Link      transport.Link
	Clock     clock.Clock
	Tick      time.Duration
	AxisDelay time.Duration
	PrepDelay time.Duration
	Metrics   Metrics

	cursor atomic.Int64

	plan      *Plan
	pending   *protocol.Command
	pendingAt time.Time
}

// Cursor returns the index of the next command to dispatch.
func (s *Scheduler) Cursor() int { return int(s.cursor.Load()) }

func (s *Scheduler) metrics() Metrics {
	if s.Metrics == nil {
		return nopMetrics{}
	}
	return s.Metrics
}

func (s *Scheduler) send(c protocol.Command) error {
	if err := s.Link.Send(c); err != nil {
		return fmt.Errorf("send %s: %w", c.Kind, err)
	}
	s.metrics().CommandSent(c.Kind)
	return nil
}

// Run sends PREP, the initial slew as STEP, then one pulse pair per due
// command until the plan is exhausted or ctx is cancelled. On cancel
// the pending tilt pulse is dropped and the cursor is left as is.
func (s *Scheduler) Run(ctx context.Context, plan *Plan) error {
	if plan == nil || len(plan.Commands) == 0 {
		return ErrEmptyPlan
	}
	if s.Clock == nil {
		s.Clock = clock.Host{}
	}
	if err := s.start(ctx, plan); err != nil {
		return err
	}

	tick := s.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		done, err := s.step(s.Clock.Now())
		if err != nil {
			return err
		}
		if done {
			debug.Info("Dispatch complete: %d commands", len(plan.Commands))
			return nil
		}
		select {
		case <-ctx.Done():
			s.pending = nil
			debug.Info("Dispatch cancelled at command %d/%d", s.Cursor(), len(plan.Commands))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// start performs the PREP and initial STEP and positions the cursor at 1.
func (s *Scheduler) start(ctx context.Context, plan *Plan) error {
	s.plan = plan
	s.pending = nil
	s.cursor.Store(0)

	if err := s.send(protocol.Simple(protocol.KindPrep)); err != nil {
		return err
	}
	if s.PrepDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.PrepDelay):
		}
	}
	first := plan.Commands[0]
	if err := s.send(protocol.Step(first.DeltaPan, first.DeltaTilt)); err != nil {
		return err
	}
	debug.Live("Slew STEP %d %d", first.DeltaPan, first.DeltaTilt)
	s.cursor.Store(1)
	return nil
}

// step runs one tick: a due pending tilt pulse is flushed, otherwise the
// command under the cursor is emitted when its instant has been reached.
// At most one command advances per call. done is true once every command
// has been sent and nothing is pending.
func (s *Scheduler) step(now time.Time) (done bool, err error) {
	if s.pending != nil {
		if now.Before(s.pendingAt) {
			return false, nil
		}
		c := *s.pending
		s.pending = nil
		if err := s.send(c); err != nil {
			return false, err
		}
		return s.Cursor() >= len(s.plan.Commands), nil
	}

	i := s.Cursor()
	if i >= len(s.plan.Commands) {
		return true, nil
	}
	cmd := s.plan.Commands[i]
	due := cmd.Due(s.plan.T0)
	if now.Before(due) {
		return false, nil
	}
	s.metrics().DispatchLag(now.Sub(due))

	panSent := false
	if c, ok := protocol.PanPulse(cmd.DeltaPan); ok {
		if err := s.send(c); err != nil {
			return false, err
		}
		panSent = true
	}
	if c, ok := protocol.TiltPulse(cmd.DeltaTilt); ok {
		if panSent && s.AxisDelay > 0 {
			s.pending = &c
			s.pendingAt = now.Add(s.AxisDelay)
		} else if err := s.send(c); err != nil {
			return false, err
		}
	}
	debug.Verbose("Command %d/%d dPan=%d dTilt=%d lag=%v", i, len(s.plan.Commands), cmd.DeltaPan, cmd.DeltaTilt, now.Sub(due))
	s.cursor.Store(int64(i + 1))
	return i+1 >= len(s.plan.Commands) && s.pending == nil, nil
}
