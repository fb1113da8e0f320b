package astro

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestDiff180_RangeAndIdentity(t *testing.T) {
	for a := -720.0; a <= 720; a += 7.5 {
		if d := Diff180(a, a); d != 0 {
			t.Fatalf("Diff180(%v,%v) = %v, want 0", a, a, d)
		}
		for b := -360.0; b <= 360; b += 11.25 {
			d := Diff180(a, b)
			if d <= -180 || d > 180 {
				t.Fatalf("Diff180(%v,%v) = %v out of (-180,180]", a, b, d)
			}
		}
	}
}

func TestDiff180_Cases(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{10, 350, 20},
		{350, 10, -20},
		{180, 0, 180},
		{0, 180, 180},
		{90, 270, 180},
		{359.5, 0.5, -1},
		{45, 30, 15},
	}
	for _, tc := range cases {
		if got := Diff180(tc.a, tc.b); !near(got, tc.want, 1e-9) {
			t.Errorf("Diff180(%v,%v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNormalize360(t *testing.T) {
	cases := map[float64]float64{0: 0, 360: 0, -90: 270, 725: 5, -720: 0, 359.999: 359.999}
	for in, want := range cases {
		got := Normalize360(in)
		if !near(got, want, 1e-9) || got < 0 || got >= 360 {
			t.Errorf("Normalize360(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestJulianDay_J2000(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if jd := JulianDay(j2000); !near(jd, 2451545.0, 1e-9) {
		t.Errorf("JulianDay(J2000) = %.9f, want 2451545.0", jd)
	}
	if g := GMST(j2000); !near(g, 280.46061837, 1e-6) {
		t.Errorf("GMST(J2000) = %.8f, want 280.46061837", g)
	}
}

func TestJulianDay_MatchesSatellite(t *testing.T) {
	instants := []time.Time{
		time.Date(1999, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 3, 45, 30, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2031, 11, 7, 18, 12, 0, 0, time.UTC),
	}
	for _, ts := range instants {
		want := satellite.JDay(ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
		if got := JulianDay(ts); !near(got, want, 1e-6) {
			t.Errorf("JulianDay(%s) = %.8f, go-satellite = %.8f", ts, got, want)
		}
		gst := Deg(satellite.ThetaG_JD(want))
		if d := Diff180(GMST(ts), gst); !near(d, 0, 1e-3) {
			t.Errorf("GMST(%s) differs from go-satellite by %.6f deg", ts, d)
		}
	}
}

func TestHourAngle_Range(t *testing.T) {
	cases := []struct {
		lst, ra, want float64
	}{
		{10, 10, 0},
		{10, 190, 180},
		{190, 10, 180},
		{0, 90, -90},
		{350, 10, -20},
	}
	for _, tc := range cases {
		if got := HourAngle(tc.lst, tc.ra); !near(got, tc.want, 1e-9) {
			t.Errorf("HourAngle(%v,%v) = %v, want %v", tc.lst, tc.ra, got, tc.want)
		}
	}
}

func TestEquatorialToHorizontal_Meridian(t *testing.T) {
	obs := Observer{LatDeg: 40, LonDeg: -74}
	ts := time.Date(2024, 3, 20, 4, 0, 0, 0, time.UTC)
	ra := LocalSiderealTime(ts, obs.LonDeg) // hour angle exactly 0

	for _, dec := range []float64{0, 20, -30} {
		az, el := EquatorialToHorizontal(ts, ra, dec, obs)
		want := 90 - math.Abs(obs.LatDeg-dec)
		if !near(el, want, 1e-6) {
			t.Errorf("dec=%v: el = %v, want %v", dec, el, want)
		}
		// South of zenith the object transits due south.
		if !near(az, 180, 1e-4) {
			t.Errorf("dec=%v: az = %v, want 180", dec, az)
		}
	}
}

func TestEquatorialToHorizontal_EastWest(t *testing.T) {
	obs := Observer{LatDeg: 40, LonDeg: -74}
	ts := time.Date(2024, 3, 20, 4, 0, 0, 0, time.UTC)
	lst := LocalSiderealTime(ts, obs.LonDeg)

	// Rising (HA < 0) is in the east, setting (HA > 0) in the west.
	azEast, _ := EquatorialToHorizontal(ts, Normalize360(lst+40), 0, obs)
	azWest, _ := EquatorialToHorizontal(ts, Normalize360(lst-40), 0, obs)
	if azEast <= 0 || azEast >= 180 {
		t.Errorf("rising object az = %v, want (0,180)", azEast)
	}
	if azWest <= 180 || azWest >= 360 {
		t.Errorf("setting object az = %v, want (180,360)", azWest)
	}
	if !near(azEast+azWest, 360, 1e-6) {
		t.Errorf("symmetric hour angles should mirror: %v + %v", azEast, azWest)
	}
}

func TestToHorizon_OnePointPerSample(t *testing.T) {
	base := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	samples := []Equatorial{
		{UTC: base, RADeg: 250, DecDeg: -20},
		{UTC: base.Add(time.Minute), RADeg: 250.01, DecDeg: -20.01},
		{UTC: base.Add(2 * time.Minute), RADeg: 250.02, DecDeg: -20.02},
	}
	got := ToHorizon(samples, Observer{LatDeg: 48.85, LonDeg: 2.35})
	if len(got) != len(samples) {
		t.Fatalf("len = %d, want %d", len(got), len(samples))
	}
	for i, p := range got {
		if !p.UTC.Equal(samples[i].UTC) {
			t.Errorf("point %d time = %v, want %v", i, p.UTC, samples[i].UTC)
		}
		if p.AzDeg < 0 || p.AzDeg >= 360 || p.ElDeg < -90 || p.ElDeg > 90 {
			t.Errorf("point %d out of range: %+v", i, p)
		}
	}
	if ToHorizon(nil, Observer{}) == nil {
		t.Error("empty input should give an empty, non-nil slice")
	}
}
