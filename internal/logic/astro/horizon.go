// Package astro converts equatorial coordinates into horizontal ones for
// an observer on Earth.
package astro

import (
	"math"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
)

// Observer is a location on Earth. Longitude is east positive.
type Observer struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// Equatorial is a timestamped right ascension / declination pair.
type Equatorial struct {
	UTC    time.Time
	RADeg  float64
	DecDeg float64
}

// HorizonPoint is a timestamped azimuth / elevation pair.
// AzDeg is in [0,360), measured from north through east.
type HorizonPoint struct {
	UTC   time.Time
	AzDeg float64
	ElDeg float64
}

// EquatorialToHorizontal converts one RA/Dec position seen at t.
func EquatorialToHorizontal(t time.Time, raDeg, decDeg float64, obs Observer) (azDeg, elDeg float64) {
	lst := LocalSiderealTime(t, obs.LonDeg)
	ha := Rad(HourAngle(lst, raDeg))
	dec := Rad(decDeg)
	lat := Rad(obs.LatDeg)

	sinEl := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	sinEl = math.Max(-1, math.Min(1, sinEl))
	el := math.Asin(sinEl)

	denom := math.Cos(el) * math.Cos(lat)
	var cosAz float64
	if denom != 0 {
		cosAz = (math.Sin(dec) - math.Sin(el)*math.Sin(lat)) / denom
	}
	cosAz = math.Max(-1, math.Min(1, cosAz))
	az := Deg(math.Acos(cosAz))
	if math.Sin(ha) > 0 {
		az = 360 - az
	}
	return Normalize360(az), Deg(el)
}

// ToHorizon converts every sample, in order, one point per sample.
func ToHorizon(samples []Equatorial, obs Observer) []HorizonPoint {
	out := make([]HorizonPoint, len(samples))
	for i, s := range samples {
		az, el := EquatorialToHorizontal(s.UTC, s.RADeg, s.DecDeg, obs)
		out[i] = HorizonPoint{UTC: s.UTC, AzDeg: az, ElDeg: el}
	}
	if len(out) > 0 {
		debug.Verbose("Transformed %d samples: first az=%.3f el=%.3f, last az=%.3f el=%.3f",
			len(out), out[0].AzDeg, out[0].ElDeg, out[len(out)-1].AzDeg, out[len(out)-1].ElDeg)
	}
	return out
}
