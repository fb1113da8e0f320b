// Package metrics exposes tracking session counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/skytrack/internal/protocol"
)

// Collector bundles the tracker metrics. It satisfies session.Metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	CommandsSent     *prometheus.CounterVec
	Lag              prometheus.Histogram
	MalformedRows    prometheus.Counter
	PlannedPoints    prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// NewCollector registers the metrics against reg (the default registerer
// when nil). Registering twice on the same registry reuses the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.CommandsSent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skytrack_commands_sent_total",
		Help: "Protocol commands sent to the mount, by keyword.",
	}, []string{"kind"}), "skytrack_commands_sent_total"); err != nil {
		return nil, err
	}
	if c.Lag, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skytrack_dispatch_lag_seconds",
		Help:    "Delay between a step command's due instant and its dispatch.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
	}), "skytrack_dispatch_lag_seconds"); err != nil {
		return nil, err
	}
	if c.MalformedRows, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skytrack_ephemeris_malformed_rows_total",
		Help: "Ephemeris rows skipped because they could not be parsed.",
	}), "skytrack_ephemeris_malformed_rows_total"); err != nil {
		return nil, err
	}
	if c.PlannedPoints, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skytrack_planned_points",
		Help: "Track points in the most recent plan.",
	}), "skytrack_planned_points"); err != nil {
		return nil, err
	}
	if c.SessionsStarted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skytrack_sessions_started_total",
		Help: "Tracking sessions started.",
	}), "skytrack_sessions_started_total"); err != nil {
		return nil, err
	}
	if c.SessionsFinished, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skytrack_sessions_finished_total",
		Help: "Tracking sessions finished, by outcome.",
	}, []string{"status"}), "skytrack_sessions_finished_total"); err != nil {
		return nil, err
	}
	if c.ActiveSessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skytrack_active_sessions",
		Help: "1 while a session is running.",
	}), "skytrack_active_sessions"); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// CommandSent counts one protocol line.
func (c *Collector) CommandSent(kind protocol.Kind) {
	if c == nil {
		return
	}
	c.CommandsSent.WithLabelValues(string(kind)).Inc()
}

// DispatchLag observes how late a command went out.
func (c *Collector) DispatchLag(lag time.Duration) {
	if c == nil {
		return
	}
	c.Lag.Observe(max(lag.Seconds(), 0))
}

// PlanBuilt records the size of a new plan and its skipped rows.
func (c *Collector) PlanBuilt(points, malformed int) {
	if c == nil {
		return
	}
	c.PlannedPoints.Set(float64(points))
	c.MalformedRows.Add(float64(malformed))
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.SessionsStarted.Inc()
	c.ActiveSessions.Set(1)
}

func (c *Collector) SessionEnded(status string) {
	if c == nil {
		return
	}
	c.SessionsFinished.WithLabelValues(status).Inc()
	c.ActiveSessions.Set(0)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
