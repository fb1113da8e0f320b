package astro

import (
	"math"
	"time"
)

// J2000 is the Julian Day of 2000-01-01 12:00 UTC.
const J2000 = 2451545.0

// JulianDay returns the Julian Day of t (Gregorian calendar, UTC).
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y := t.Year()
	m := int(t.Month())
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4

	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	return math.Floor(365.25*float64(y+4716)) +
		math.Floor(30.6001*float64(m+1)) +
		float64(t.Day()) + dayFrac + float64(b) - 1524.5
}

// GMST returns the Greenwich mean sidereal time of t in degrees, [0,360).
func GMST(t time.Time) float64 {
	jd := JulianDay(t)
	d := jd - J2000
	c := d / 36525
	g := 280.46061837 + 360.98564736629*d + 0.000387933*c*c - c*c*c/38710000
	return Normalize360(g)
}

// LocalSiderealTime returns GMST + east longitude, in [0,360).
func LocalSiderealTime(t time.Time, lonDeg float64) float64 {
	return Normalize360(GMST(t) + lonDeg)
}

// HourAngle returns LST - RA reduced into (-180,180].
func HourAngle(lstDeg, raDeg float64) float64 {
	h := Normalize360(lstDeg - raDeg)
	if h > 180 {
		h -= 360
	}
	return h
}
