// Package session turns an ephemeris into a timed step plan and runs it
// against the mount, one session at a time.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/ephemeris"
	"github.com/cjeanneret/skytrack/internal/logic/geometry"
	"github.com/cjeanneret/skytrack/internal/logic/trajectory"
)

// ErrEmptyPlan is returned when the ephemeris yields fewer than two usable
// samples, so there is nothing to track.
var ErrEmptyPlan = errors.New("empty plan")

// Plan is one session: the resampled path and its step commands, aligned
// index for index.
type Plan struct {
	ID        uuid.UUID
	Object    string
	T0        time.Time
	Points    []trajectory.TrackPoint
	Commands  []geometry.StepCommand
	Malformed int
}

// Planner chains parse, transform, resample and encode. It has no side
// effects and may be shared.
type Planner struct {
	Observer   astro.Observer
	Cadence    time.Duration
	Parse      ephemeris.ParseOptions
	NewEncoder func() *geometry.Encoder
}

// NewPlanner wires the planner from configuration.
func NewPlanner(cfg *config.Config) *Planner {
	return &Planner{
		Observer: astro.Observer{
			LatDeg: cfg.Observer.LatitudeDeg,
			LonDeg: cfg.Observer.LongitudeDeg,
			AltM:   cfg.Observer.AltitudeM,
		},
		Cadence: cfg.Cadence(),
		Parse: ephemeris.ParseOptions{
			ColumnRA:  cfg.Ephemeris.ColumnRA,
			ColumnDec: cfg.Ephemeris.ColumnDec,
		},
		NewEncoder: func() *geometry.Encoder { return geometry.NewEncoderFromConfig(cfg) },
	}
}

// Plan builds a session for object from raw Horizons text as seen from
// obs, with offsets measured from t0.
func (p *Planner) Plan(object, raw string, obs astro.Observer, t0 time.Time) (*Plan, error) {
	debug.Section("Planning " + object)

	parsed := ephemeris.Parse(raw, p.Parse)
	debug.Step(1, fmt.Sprintf("parsed %d samples, %d malformed rows", len(parsed.Samples), parsed.Malformed))

	horizon := astro.ToHorizon(parsed.Samples, obs)
	debug.Step(2, fmt.Sprintf("transformed %d samples for lat=%.4f lon=%.4f", len(horizon), obs.LatDeg, obs.LonDeg))

	resampled := trajectory.Resample(horizon, p.Cadence)
	if len(resampled) == 0 {
		return nil, fmt.Errorf("%w: %d samples, %d malformed rows", ErrEmptyPlan, len(parsed.Samples), parsed.Malformed)
	}
	debug.Step(3, fmt.Sprintf("resampled to %d points at %v", len(resampled), p.Cadence))

	points := trajectory.ToTrack(resampled, t0)
	enc := p.NewEncoder()
	cmds := enc.Encode(points)
	debug.Step(4, fmt.Sprintf("encoded %d step commands", len(cmds)))

	plan := &Plan{
		ID:        uuid.New(),
		Object:    object,
		T0:        t0,
		Points:    points,
		Commands:  cmds,
		Malformed: parsed.Malformed,
	}
	debug.Summary("Session plan")
	debug.Value("ID", plan.ID)
	debug.Value("Object", object)
	debug.Value("T0", t0.UTC().Format(time.RFC3339))
	debug.Value("Points", len(points))
	debug.Value("First az/el", fmt.Sprintf("%.3f/%.3f", points[0].AzDeg, points[0].ElDeg))
	return plan, nil
}
