// Package sensor exposes the absolute orientation used by the calibration:
// a magnetometer for heading and an accelerometer for elevation.
package sensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/skytrack/internal/debug"
)

// ErrNotPresent is returned by Begin when a sensor does not answer.
var ErrNotPresent = errors.New("sensor not present")

// Vector is a 3-axis reading in sensor coordinates.
type Vector struct {
	X, Y, Z float64
}

// Magnetometer reads the magnetic field.
type Magnetometer interface {
	Begin() error
	ReadField() (Vector, error)
}

// Accelerometer reads the acceleration (gravity at rest).
type Accelerometer interface {
	Begin() error
	ReadAcceleration() (Vector, error)
}

// Orientation is what the calibrator needs from the sensor pair.
type Orientation interface {
	Begin() error
	ReadHeadingDeg() (float64, error)
	ReadAcceleration() (Vector, error)
}

// HeadingFromField returns atan2(y, x) in degrees normalised to [0,360).
func HeadingFromField(v Vector) float64 {
	h := math.Atan2(v.Y, v.X) * 180 / math.Pi
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// ElevationFromGravity returns the pitch of the sensor X axis in degrees:
// atan2(-ax, sqrt(ay^2 + az^2)).
func ElevationFromGravity(v Vector) float64 {
	return math.Atan2(-v.X, math.Sqrt(v.Y*v.Y+v.Z*v.Z)) * 180 / math.Pi
}

// Fusion combines a magnetometer and an accelerometer.
type Fusion struct {
	Mag   Magnetometer
	Accel Accelerometer
}

// Begin initialises both sensors. Either failure is reported.
func (f *Fusion) Begin() error {
	if err := f.Mag.Begin(); err != nil {
		return fmt.Errorf("magnetometer: %w", err)
	}
	if err := f.Accel.Begin(); err != nil {
		return fmt.Errorf("accelerometer: %w", err)
	}
	debug.Verbose("Orientation sensors initialised")
	return nil
}

// ReadHeadingDeg returns the magnetic heading in [0,360).
func (f *Fusion) ReadHeadingDeg() (float64, error) {
	v, err := f.Mag.ReadField()
	if err != nil {
		return 0, err
	}
	return HeadingFromField(v), nil
}

// ReadAcceleration returns the raw accelerometer vector.
func (f *Fusion) ReadAcceleration() (Vector, error) {
	return f.Accel.ReadAcceleration()
}

// Static is a fixed-reading sensor used on benches without an IMU and in
// tests. It satisfies both Magnetometer and Accelerometer.
type Static struct {
	Field  Vector
	Accel  Vector
	Absent bool
}

func (s *Static) Begin() error {
	if s.Absent {
		return ErrNotPresent
	}
	return nil
}

func (s *Static) ReadField() (Vector, error) { return s.Field, nil }

func (s *Static) ReadAcceleration() (Vector, error) { return s.Accel, nil }

// NewStatic builds a Fusion backed by one Static sensor.
func NewStatic(mag, accel [3]float64, absent bool) *Fusion {
	s := &Static{
		Field:  Vector{mag[0], mag[1], mag[2]},
		Accel:  Vector{accel[0], accel[1], accel[2]},
		Absent: absent,
	}
	return &Fusion{Mag: s, Accel: s}
}
