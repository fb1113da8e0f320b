// Package trajectory turns irregular horizon samples into a uniform-cadence
// path and holds it for playback.
package trajectory

import (
	"math"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
	"github.com/cjeanneret/skytrack/internal/logic/astro"
)

// omegaEpsilon is the angle (radians) below which two directions are
// treated as identical.
const omegaEpsilon = 1e-9

type vec3 struct{ x, y, z float64 }

func toVec(azDeg, elDeg float64) vec3 {
	az, el := astro.Rad(azDeg), astro.Rad(elDeg)
	return vec3{
		x: math.Cos(el) * math.Cos(az),
		y: math.Cos(el) * math.Sin(az),
		z: math.Sin(el),
	}
}

func fromVec(v vec3) (azDeg, elDeg float64) {
	n := math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
	if n == 0 {
		return 0, 0
	}
	z := math.Max(-1, math.Min(1, v.z/n))
	return astro.Normalize360(astro.Deg(math.Atan2(v.y, v.x))), astro.Deg(math.Asin(z))
}

// Slerp interpolates between two directions along the great circle.
// t=0 gives a, t=1 gives b. Identical directions return a.
func Slerp(a, b astro.HorizonPoint, t float64) (azDeg, elDeg float64) {
	v0, v1 := toVec(a.AzDeg, a.ElDeg), toVec(b.AzDeg, b.ElDeg)
	dot := math.Max(-1, math.Min(1, v0.x*v1.x+v0.y*v1.y+v0.z*v1.z))
	omega := math.Acos(dot)
	if omega < omegaEpsilon {
		return a.AzDeg, a.ElDeg
	}
	s := math.Sin(omega)
	w0 := math.Sin((1-t)*omega) / s
	w1 := math.Sin(t*omega) / s
	return fromVec(vec3{
		x: w0*v0.x + w1*v1.x,
		y: w0*v0.y + w1*v1.y,
		z: w0*v0.z + w1*v1.z,
	})
}

// Resample emits floor(dt/cadence) interpolated points per consecutive
// pair, starting at the pair's first point, then the final input point
// verbatim. Fewer than two inputs give an empty result.
func Resample(points []astro.HorizonPoint, cadence time.Duration) []astro.HorizonPoint {
	if len(points) < 2 || cadence <= 0 {
		return []astro.HorizonPoint{}
	}
	out := make([]astro.HorizonPoint, 0, len(points))
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		dt := b.UTC.Sub(a.UTC)
		steps := int(dt / cadence)
		for s := 0; s < steps; s++ {
			t := float64(s) / float64(steps)
			az, el := Slerp(a, b, t)
			out = append(out, astro.HorizonPoint{
				UTC:   a.UTC.Add(time.Duration(s) * cadence),
				AzDeg: az,
				ElDeg: el,
			})
		}
	}
	out = append(out, points[len(points)-1])
	debug.Verbose("Resampled %d points into %d at %v cadence", len(points), len(out), cadence)
	return out
}
