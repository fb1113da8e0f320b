package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/skytrack/internal/logic/session"
)

// clientBuffer is the per-subscriber backlog before messages are dropped.
const clientBuffer = 64

// StatusEvent is one SSE message: a log line, or a session snapshot.
type StatusEvent struct {
	Time    string          `json:"t"`
	Level   string          `json:"l,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Session *session.Status `json:"session,omitempty"`
}

// StatusBroadcaster fans status events out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON events and its cleanup function,
// which the caller must run when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, clientBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish stamps and sends evt. Slow clients miss messages rather than
// blocking the sender.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = b.now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Broadcast sends a log message at level.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.Publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg sends an "info" message.
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastSession sends a session snapshot.
func (b *StatusBroadcaster) BroadcastSession(st session.Status) {
	b.Publish(StatusEvent{Level: "session", Session: &st})
}

// BroadcastWriter adapts the broadcaster to io.Writer so debug output can
// be teed to SSE clients, one event per non-empty line.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.b.Broadcast(lineLevel(line), line)
	}
	return len(p), nil
}

// lineLevel recovers the level from a console-encoded log line.
func lineLevel(line string) string {
	switch {
	case strings.Contains(line, "\tERROR\t"):
		return "error"
	case strings.Contains(line, "\tWARN\t"):
		return "warn"
	}
	return "info"
}
