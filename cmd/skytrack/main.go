package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/skytrack/internal/clock"
	"github.com/cjeanneret/skytrack/internal/config"
	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/ephemeris"
	"github.com/cjeanneret/skytrack/internal/logic/session"
	"github.com/cjeanneret/skytrack/internal/metrics"
	"github.com/cjeanneret/skytrack/internal/repository"
	"github.com/cjeanneret/skytrack/internal/transport"
	"github.com/cjeanneret/skytrack/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	object := flag.String("object", "", "object to track once (planet name or catalog id)")
	durationMin := flag.Float64("duration_min", 0, "override tracking window in minutes (1-1440)")
	latDeg := flag.Float64("lat", 0, "override observer latitude in degrees")
	lonDeg := flag.Float64("lon", 0, "override observer longitude in degrees, east positive")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*latDeg, *lonDeg, *durationMin); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *latDeg, *lonDeg, *durationMin)

	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Strategy", cfg.Tracking.Strategy)

	debug.Step(1, "Opening command link")
	link, err := selectLink(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("open link failed: %v", err)
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Printf("closing link failed: %v", err)
		}
	}()

	// One sync per connection; the device never resyncs mid-session.
	if err := link.Send(clock.SyncCommand(clock.Host{})); err != nil {
		log.Fatalf("time sync failed: %v", err)
	}

	debug.Step(2, "Preparing metrics and journal")
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		log.Fatalf("init metrics failed: %v", err)
	}

	var journal *repository.Journal
	if cfg.Storage.Path != "" {
		db, err := repository.InitDB(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("open journal failed: %v", err)
		}
		defer db.Close()
		journal = repository.NewJournal(db)
		debug.Value("Journal", cfg.Storage.Path)
	}

	debug.Step(3, "Building tracker")
	tracker := session.NewTracker(cfg,
		session.NewPlanner(cfg),
		ephemeris.NewClient(cfg.Ephemeris.BaseURL, cfg.EphemerisTimeout()),
		link,
	)
	tracker.Metrics = collector
	if journal != nil {
		tracker.Journal = journal
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			Object:      *object,
			DurationMin: float64(cfg.Ephemeris.DurationMin),
			LatDeg:      cfg.Observer.LatitudeDeg,
			LonDeg:      cfg.Observer.LongitudeDeg,
			AltM:        cfg.Observer.AltitudeM,
			Strategy:    cfg.Tracking.Strategy,
			CadenceS:    cfg.Tracking.CadenceS,
		}
		var lister web.SessionLister
		if journal != nil {
			lister = journal
		}
		handlers := web.NewHandlers(broadcaster, tracker, lister, formDefaults)
		srv := web.NewServer(webAddr, handlers, collector.Handler())
		err := srv.Run(ctx)
		_ = tracker.Stop()
		tracker.Wait()
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if *object == "" {
		log.Fatal("nothing to do: pass -object to track once or -web to serve the API")
	}
	if err := trackOnce(ctx, tracker, session.Request{Object: *object}); err != nil {
		log.Fatalf("tracking failed: %v", err)
	}
}

// trackOnce starts a session and blocks until it ends. Interrupting it
// stops the session and sends BREAK.
func trackOnce(ctx context.Context, tr *session.Tracker, req session.Request) error {
	plan, err := tr.Start(ctx, req)
	if err != nil {
		return err
	}
	debug.Info("Session %s: %s, %d commands from %s", plan.ID, plan.Object, len(plan.Commands), plan.T0.Format(time.RFC3339))

	done := make(chan struct{})
	go func() {
		tr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err := tr.Stop(); err != nil {
			return err
		}
		<-done
	}
	debug.Section("Session Complete")
	return nil
}

// selectLink opens the command link named by transport.type. stdout
// writes protocol lines to w, which is handy for piping into a serial tool.
func selectLink(ctx context.Context, cfg *config.Config, w io.Writer) (transport.Link, error) {
	t := cfg.Transport
	timeout := cfg.EphemerisTimeout()
	switch t.Type {
	case "stdout":
		return transport.NewLineLink(w), nil
	case "tcp":
		return transport.DialTCP(ctx, t.Addr, timeout)
	case "mqtt":
		return transport.DialMQTT(t.Broker, t.ClientID, t.Topic, timeout)
	default:
		return nil, errors.New("unsupported transport type: " + t.Type)
	}
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(lat, lon, durationMin float64) error {
	if lat != 0 {
		if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
			return fmt.Errorf("lat must be between -90 and 90, got %g", lat)
		}
	}
	if lon != 0 {
		if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
			return fmt.Errorf("lon must be between -180 and 180, got %g", lon)
		}
	}
	if durationMin != 0 {
		if math.IsNaN(durationMin) || math.IsInf(durationMin, 0) || durationMin < 1 || durationMin > 1440 {
			return fmt.Errorf("duration_min must be between 1 and 1440, got %g", durationMin)
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, lat, lon, durationMin float64) {
	if lat != 0 {
		cfg.Observer.LatitudeDeg = lat
	}
	if lon != 0 {
		cfg.Observer.LongitudeDeg = lon
	}
	if durationMin != 0 {
		cfg.Ephemeris.DurationMin = int(math.Ceil(durationMin))
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
