package trajectory

import (
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
)

// TrackPoint is a target direction at an offset from the session T0.
type TrackPoint struct {
	OffsetS float64
	AzDeg   float64
	ElDeg   float64
}

// At returns the absolute instant of p for the given T0.
func (p TrackPoint) At(t0 time.Time) time.Time {
	return t0.Add(time.Duration(p.OffsetS * float64(time.Second)))
}

// ToTrack expresses points as offsets from t0. Points earlier than t0
// get negative offsets and are due as soon as playback starts.
func ToTrack(points []astro.HorizonPoint, t0 time.Time) []TrackPoint {
	out := make([]TrackPoint, len(points))
	for i, p := range points {
		out[i] = TrackPoint{
			OffsetS: p.UTC.Sub(t0).Seconds(),
			AzDeg:   p.AzDeg,
			ElDeg:   p.ElDeg,
		}
	}
	return out
}

// Buffer is a fixed-capacity trajectory store with a playback cursor.
// It is owned by a single goroutine.
type Buffer struct {
	points []TrackPoint
	cap    int
	cursor int
}

// NewBuffer returns an empty buffer holding at most capacity points.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{points: make([]TrackPoint, 0, capacity), cap: capacity}
}

// Load replaces the content and resets the cursor. Points beyond the
// capacity are dropped from the tail. It returns the number kept.
func (b *Buffer) Load(points []TrackPoint) int {
	n := len(points)
	if n > b.cap {
		debug.Warn("Trajectory truncated: %d points, capacity %d", n, b.cap)
		n = b.cap
	}
	b.points = append(b.points[:0], points[:n]...)
	b.cursor = 0
	return n
}

// Append adds one point, ignoring it when full. It reports whether the
// point was kept.
func (b *Buffer) Append(p TrackPoint) bool {
	if len(b.points) >= b.cap {
		return false
	}
	b.points = append(b.points, p)
	return true
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.points = b.points[:0]
	b.cursor = 0
}

func (b *Buffer) Len() int { return len(b.points) }

func (b *Buffer) Cap() int { return b.cap }

func (b *Buffer) At(i int) TrackPoint { return b.points[i] }

// Cursor is the index of the next point to play.
func (b *Buffer) Cursor() int { return b.cursor }

// Rewind moves the cursor back to the first point.
func (b *Buffer) Rewind() { b.cursor = 0 }

// Advance moves the cursor one point forward, up to Len.
func (b *Buffer) Advance() {
	if b.cursor < len(b.points) {
		b.cursor++
	}
}

// Done reports whether every point has been played.
func (b *Buffer) Done() bool { return b.cursor >= len(b.points) }
