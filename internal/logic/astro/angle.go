package astro

import "math"

// Normalize360 maps any angle into [0,360).
func Normalize360(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}

// Diff180 returns the signed shortest difference a-b, in (-180,180].
// Antipodal inputs map to +180.
func Diff180(a, b float64) float64 {
	d := Normalize360(a-b+540) - 180
	if d <= -180 {
		d += 360
	}
	return d
}

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * 180 / math.Pi }
