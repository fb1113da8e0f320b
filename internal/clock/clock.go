// Package clock gives the host and the device a shared notion of the
// session start instant.
package clock

import (
	"sync"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/protocol"
)

// Clock is a source of wall time.
type Clock interface {
	Now() time.Time
}

// Host is the host wall clock.
type Host struct{}

func (Host) Now() time.Time { return time.Now() }

// NextT0 returns the first multiple of round strictly after now, plus
// lead. Host and device get the same T0 from the same inputs.
func NextT0(now time.Time, round, lead time.Duration) time.Time {
	if round <= 0 {
		return now.Add(lead)
	}
	next := now.Truncate(round)
	if !next.After(now) {
		next = next.Add(round)
	}
	return next.Add(lead)
}

// SyncCommand is the one-shot SYNC_TIME sent when the link comes up.
func SyncCommand(c Clock) protocol.Command {
	return protocol.SyncTime(c.Now())
}

// DeviceClock is the device view of wall time: the origin received with
// SYNC_TIME plus the monotonic time elapsed since. It is never resynced
// during a session, so host/device drift is not corrected.
type DeviceClock struct {
	mu     sync.RWMutex
	origin time.Time
	anchor time.Time
	synced bool

	// Mono is the local monotonic source. Tests replace it.
	Mono func() time.Time
}

// NewDeviceClock returns an unsynced clock.
func NewDeviceClock() *DeviceClock {
	return &DeviceClock{Mono: time.Now}
}

// Sync sets the origin to epochMs (host wall time) as of now.
func (d *DeviceClock) Sync(epochMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.origin = time.UnixMilli(epochMs).UTC()
	d.anchor = d.Mono()
	d.synced = true
	debug.Info("Device clock synced to %s", d.origin.Format(time.RFC3339Nano))
}

// Synced reports whether SYNC_TIME has been received.
func (d *DeviceClock) Synced() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.synced
}

// Now returns origin + elapsed since Sync, or the local clock before any sync.
func (d *DeviceClock) Now() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.synced {
		return d.Mono()
	}
	return d.origin.Add(d.Mono().Sub(d.anchor))
}
