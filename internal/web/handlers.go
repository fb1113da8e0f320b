package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
	"github.com/cjeanneret/skytrack/internal/logic/session"
	"github.com/cjeanneret/skytrack/internal/protocol"
	"github.com/cjeanneret/skytrack/internal/repository"
)

const (
	maxBodyBytes     = 1 << 20
	maxDurationMin   = 24 * 60
	defaultStartGap  = 5 * time.Second
	defaultStartWait = 2 * time.Minute
)

// Tracker is the session control surface. session.Tracker implements it.
type Tracker interface {
	Start(ctx context.Context, req session.Request) (*session.Plan, error)
	Stop() error
	Send(c protocol.Command) error
	Status() session.Status
}

// SessionLister reads the journal. repository.Journal implements it.
type SessionLister interface {
	Recent(ctx context.Context, limit int) ([]repository.SessionRecord, error)
}

// TrackRequest is the POST /track body. Omitted location fields mean
// "use the configured observer"; lat and lon come together.
type TrackRequest struct {
	Object      string   `json:"object"`
	DurationMin float64  `json:"duration_min"`
	LatDeg      *float64 `json:"lat,omitempty"`
	LonDeg      *float64 `json:"lon,omitempty"`
	AltM        *float64 `json:"alt_m,omitempty"`
}

// JogRequest is the POST /jog body.
type JogRequest struct {
	Direction  string `json:"direction"`
	Continuous bool   `json:"continuous"`
}

// FormConfig holds the defaults shown by clients (from config).
type FormConfig struct {
	Object      string  `json:"object"`
	DurationMin float64 `json:"duration_min"`
	LatDeg      float64 `json:"lat"`
	LonDeg      float64 `json:"lon"`
	AltM        float64 `json:"alt_m"`
	Strategy    string  `json:"strategy"`
	CadenceS    int     `json:"cadence_s"`
}

// ValidateTrackRequest checks ranges. A zero duration means "use config
// default"; an observer override needs both lat and lon.
func ValidateTrackRequest(r TrackRequest) error {
	if strings.TrimSpace(r.Object) == "" {
		return errors.New("object is required")
	}
	if (r.LatDeg == nil) != (r.LonDeg == nil) {
		return errors.New("lat and lon must be given together")
	}
	if r.AltM != nil && r.LatDeg == nil {
		return errors.New("alt_m needs lat and lon")
	}
	for _, f := range []struct {
		name     string
		v        *float64
		min, max float64
	}{
		{"duration_min", &r.DurationMin, 0, maxDurationMin},
		{"lat", r.LatDeg, -90, 90},
		{"lon", r.LonDeg, -180, 180},
		{"alt_m", r.AltM, -500, 9000},
	} {
		if f.v == nil {
			continue
		}
		if v := *f.v; math.IsNaN(v) || math.IsInf(v, 0) || v < f.min || v > f.max {
			return fmt.Errorf("%s must be between %g and %g, got %g", f.name, f.min, f.max, v)
		}
	}
	return nil
}

// request converts the body into a session request.
func (r TrackRequest) request() session.Request {
	req := session.Request{
		Object:   strings.TrimSpace(r.Object),
		Duration: time.Duration(r.DurationMin * float64(time.Minute)),
	}
	if r.LatDeg != nil && r.LonDeg != nil {
		obs := astro.Observer{LatDeg: *r.LatDeg, LonDeg: *r.LonDeg}
		if r.AltM != nil {
			obs.AltM = *r.AltM
		}
		req.Observer = &obs
	}
	return req
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StatusBroadcaster
	Tracker      Tracker
	Sessions     SessionLister
	FormDefaults FormConfig

	// StartGap is the minimum time between two accepted POST /track.
	StartGap time.Duration
	// StartTimeout bounds the ephemeris fetch and planning.
	StartTimeout time.Duration

	mu        sync.Mutex
	starting  bool
	lastStart time.Time
	now       func() time.Time
}

// NewHandlers creates handlers. A nil tracker makes control routes answer
// 503; a nil lister does the same for GET /sessions.
func NewHandlers(b *StatusBroadcaster, tr Tracker, sessions SessionLister, formDefaults FormConfig) *Handlers {
	return &Handlers{
		Broadcaster:  b,
		Tracker:      tr,
		Sessions:     sessions,
		FormDefaults: formDefaults,
		StartGap:     defaultStartGap,
		StartTimeout: defaultStartWait,
		now:          time.Now,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// HandleConfig returns the form defaults as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

// HandleTrack handles POST /track. Fetching and planning run in the
// background; a second request while one is still fetching gets 409.
func (h *Handlers) HandleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body TrackRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := ValidateTrackRequest(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if h.starting {
		h.mu.Unlock()
		http.Error(w, "session start already in progress", http.StatusConflict)
		return
	}
	if now := h.now(); !h.lastStart.IsZero() && now.Sub(h.lastStart) < h.StartGap {
		h.mu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	h.starting = true
	h.lastStart = h.now()
	h.mu.Unlock()

	req := body.request()
	go func() {
		defer func() {
			h.mu.Lock()
			h.starting = false
			h.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.StartTimeout)
		defer cancel()
		plan, err := h.Tracker.Start(ctx, req)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Session start failed: "+err.Error())
			debug.Error(fmt.Errorf("start %s: %w", req.Object, err))
			return
		}
		h.Broadcaster.Broadcast("info", fmt.Sprintf("Tracking %s: %d points from %s",
			plan.Object, len(plan.Points), plan.T0.UTC().Format(time.RFC3339)))
		h.Broadcaster.BroadcastSession(h.Tracker.Status())
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleStop handles POST /stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Tracker.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.Broadcaster.BroadcastSession(h.Tracker.Status())
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleHome handles POST /home: the device runs its calibration.
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.send(w, protocol.Simple(protocol.KindHome), "homing")
}

// HandleJog handles POST /jog. Direction "none" or "stop" ends manual motion.
func (h *Handlers) HandleJog(w http.ResponseWriter, r *http.Request) {
	var body JogRequest
	if !decodeBody(w, r, &body) {
		return
	}
	name := strings.ToLower(strings.TrimSpace(body.Direction))

	var cmd protocol.Command
	if name == "stop" || name == "none" {
		cmd = protocol.Simple(protocol.KindStop)
	} else {
		dir, ok := protocol.ParseDirection(name)
		if !ok {
			http.Error(w, "direction must be up, down, left, right or stop", http.StatusBadRequest)
			return
		}
		if body.Continuous {
			cmd, _ = protocol.StartCommand(dir)
		} else {
			cmd, _ = protocol.JogCommand(dir)
		}
	}
	h.send(w, cmd, "sent")
}

func (h *Handlers) send(w http.ResponseWriter, c protocol.Command, status string) {
	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Tracker.Send(c); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status, "command": c.String()})
}

// HandleStatus returns the current session snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		http.Error(w, "tracker not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Tracker.Status())
}

// HandleSessions lists recent journal entries; ?limit= caps the count.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		http.Error(w, "journal not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := h.Sessions.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		debug.Error(err)
		return
	}
	if recs == nil {
		recs = []repository.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
