package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/skytrack/internal/clock"
	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/ephemeris"
	"github.com/cjeanneret/skytrack/internal/protocol"
	"github.com/cjeanneret/skytrack/internal/transport"
)

// Execution strategies.
const (
	StrategyDispatch = "dispatch"
	StrategyFollow   = "follow"
)

// Session outcomes recorded in the journal.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Fetcher downloads raw ephemeris text. ephemeris.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, r ephemeris.Request) (string, error)
}

// Journal records session lifecycles. repository.Journal implements it.
type Journal interface {
	Begin(ctx context.Context, id uuid.UUID, object string, t0 time.Time, points int) error
	Finish(ctx context.Context, id uuid.UUID, status string, cursor int) error
}

// Request starts a session.
type Request struct {
	Object   string
	Duration time.Duration   // 0 = configured tracking window
	Observer *astro.Observer // nil = configured observer
}

// Status is a snapshot of the current session.
type Status struct {
	Active bool      `json:"active"`
	ID     string    `json:"id,omitempty"`
	Object string    `json:"object,omitempty"`
	T0     time.Time `json:"t0,omitempty"`
	Cursor int       `json:"cursor"`
	Total  int       `json:"total"`
}

type run struct {
	plan   *Plan
	sched  *Scheduler
	cancel context.CancelFunc
	done   chan struct{}
	sent   int // follow strategy upload progress, written before done closes
}

// Tracker owns the single active-session slot.
type Tracker struct {
	Planner   *Planner
	Fetcher   Fetcher
	Link      transport.Link
	Clock     clock.Clock
	Strategy  string
	Round     time.Duration
	Lead      time.Duration
	Window    time.Duration
	StepSize  string
	Tick      time.Duration
	AxisDelay time.Duration
	PrepDelay time.Duration
	Metrics   Metrics
	Journal   Journal

	mu  sync.Mutex
	cur *run
}

// NewTracker wires a tracker from configuration.
func NewTracker(cfg *config.Config, planner *Planner, f Fetcher, link transport.Link) *Tracker {
	return &Tracker{
		Planner:   planner,
		Fetcher:   f,
		Link:      link,
		Clock:     clock.Host{},
		Strategy:  cfg.Tracking.Strategy,
		Round:     cfg.Round(),
		Lead:      cfg.LeadTime(),
		Window:    cfg.TrackingWindow(),
		StepSize:  cfg.Ephemeris.StepSize,
		Tick:      cfg.Tick(),
		AxisDelay: cfg.AxisDelay(),
		PrepDelay: cfg.PrepDelay(),
	}
}

func (t *Tracker) metrics() Metrics {
	if t.Metrics == nil {
		return nopMetrics{}
	}
	return t.Metrics
}

func (t *Tracker) now() time.Time {
	if t.Clock == nil {
		return time.Now()
	}
	return t.Clock.Now()
}

// Start fetches and plans a new session, then replaces any running one.
// It returns once the new session is running in the background.
func (t *Tracker) Start(ctx context.Context, req Request) (*Plan, error) {
	obs := t.Planner.Observer
	if req.Observer != nil {
		obs = *req.Observer
	}
	window := req.Duration
	if window <= 0 {
		window = t.Window
	}
	t0 := clock.NextT0(t.now(), t.Round, t.Lead)

	raw, err := t.Fetcher.Fetch(ctx, ephemeris.Request{
		Object:   req.Object,
		Start:    t0,
		Stop:     t0.Add(window),
		StepSize: t.StepSize,
		LatDeg:   obs.LatDeg,
		LonDeg:   obs.LonDeg,
		AltM:     obs.AltM,
	})
	if err != nil {
		return nil, err
	}
	plan, err := t.Planner.Plan(req.Object, raw, obs, t0)
	if err != nil {
		return nil, err
	}
	t.metrics().PlanBuilt(len(plan.Points), plan.Malformed)
	return plan, t.Launch(plan)
}

// Launch runs an already built plan, cancelling and waiting for the
// previous session first.
func (t *Tracker) Launch(plan *Plan) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	if t.Journal != nil {
		if err := t.Journal.Begin(context.Background(), plan.ID, plan.Object, plan.T0, len(plan.Points)); err != nil {
			debug.Warn("journal begin: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		plan: plan,
		sched: &Scheduler{
			Link:      t.Link,
			Clock:     t.Clock,
			Tick:      t.Tick,
			AxisDelay: t.AxisDelay,
			PrepDelay: t.PrepDelay,
			Metrics:   t.Metrics,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.cur = r
	t.metrics().SessionStarted()
	debug.Info("Session %s started (%s, %s strategy)", plan.ID, plan.Object, t.strategy())
	go t.execute(ctx, r)
	return nil
}

func (t *Tracker) strategy() string {
	if t.Strategy == "" {
		return StrategyDispatch
	}
	return t.Strategy
}

func (t *Tracker) execute(ctx context.Context, r *run) {
	defer close(r.done)

	var err error
	cursor := 0
	if t.strategy() == StrategyFollow {
		r.sent, err = t.upload(ctx, r.plan)
		cursor = r.sent
	} else {
		err = r.sched.Run(ctx, r.plan)
		cursor = r.sched.Cursor()
	}

	status := StatusDone
	switch {
	case errors.Is(err, context.Canceled):
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
		debug.Error(fmt.Errorf("session %s: %w", r.plan.ID, err))
	}
	t.metrics().SessionEnded(status)
	if t.Journal != nil {
		if jerr := t.Journal.Finish(context.Background(), r.plan.ID, status, cursor); jerr != nil {
			debug.Warn("journal finish: %v", jerr)
		}
	}
	debug.Info("Session %s %s at %d", r.plan.ID, status, cursor)
}

// upload hands the whole trajectory to the device follower: PREP, every
// point as POINT, then TRACK with T0. The device slews from its homing
// reference to the first point when TRACK arrives.
func (t *Tracker) upload(ctx context.Context, plan *Plan) (int, error) {
	if err := t.Link.Send(protocol.Simple(protocol.KindPrep)); err != nil {
		return 0, fmt.Errorf("send PREP: %w", err)
	}
	t.metrics().CommandSent(protocol.KindPrep)
	for i, p := range plan.Points {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		c := protocol.Point(p.OffsetS, p.AzDeg, p.ElDeg)
		if err := t.Link.Send(c); err != nil {
			return i, fmt.Errorf("send POINT %d: %w", i, err)
		}
		t.metrics().CommandSent(c.Kind)
	}
	if err := t.Link.Send(protocol.Track(plan.T0)); err != nil {
		return len(plan.Points), fmt.Errorf("send TRACK: %w", err)
	}
	t.metrics().CommandSent(protocol.KindTrack)
	return len(plan.Points), nil
}

// stopLocked cancels the running session and waits for its loop to exit.
func (t *Tracker) stopLocked() {
	if t.cur == nil {
		return
	}
	t.cur.cancel()
	<-t.cur.done
}

// Stop halts the running session, if any, and sends BREAK so the device
// stops following and zeroes its speeds.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	if err := t.Link.Send(protocol.Simple(protocol.KindBreak)); err != nil {
		return fmt.Errorf("send BREAK: %w", err)
	}
	t.metrics().CommandSent(protocol.KindBreak)
	return nil
}

// Send forwards a manual command (jog, HOME) to the device.
func (t *Tracker) Send(c protocol.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.Link.Send(c); err != nil {
		return fmt.Errorf("send %s: %w", c.Kind, err)
	}
	t.metrics().CommandSent(c.Kind)
	return nil
}

// Active reports whether a session loop is still running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

func (t *Tracker) activeLocked() bool {
	if t.cur == nil {
		return false
	}
	select {
	case <-t.cur.done:
		return false
	default:
		return true
	}
}

// Status returns a snapshot of the current or last session.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur == nil {
		return Status{}
	}
	p := t.cur.plan
	st := Status{
		Active: t.activeLocked(),
		ID:     p.ID.String(),
		Object: p.Object,
		T0:     p.T0,
		Total:  len(p.Commands),
		Cursor: t.cur.sched.Cursor(),
	}
	if t.strategy() == StrategyFollow {
		st.Total = len(p.Points)
		if !st.Active {
			st.Cursor = t.cur.sent
		}
	}
	return st
}

// Wait blocks until the current session ends.
func (t *Tracker) Wait() {
	t.mu.Lock()
	r := t.cur
	t.mu.Unlock()
	if r != nil {
		<-r.done
	}
}
