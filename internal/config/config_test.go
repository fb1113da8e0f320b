package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := []string{
		"",
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		err := ValidateConfigPath(path)
		if err == nil {
			t.Errorf("expected error for %q, got nil", path)
			continue
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error for %q should wrap ErrInvalidConfig, got %v", path, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
pan_stepper:
  step_pin: 17
  dir_pin: 27
  enable_pin: 5
  endstop_pin: 16
  steps_per_rev: 200
  microstepping: 8
  gear_ratio: 12.857142857142858
tilt_stepper:
  step_pin: 22
  dir_pin: 23
  enable_pin: 6
  endstop_pin: 26
  steps_per_rev: 200
  microstepping: 8
  gear_ratio: 6
observer:
  latitude_deg: 52.23
  longitude_deg: 21.01
  altitude_m: 110
tracking:
  cadence_s: 10
  tilt_sign: 1
  origin: calibration
transport:
  type: tcp
  addr: "192.168.4.1:3333"
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PanStepper.EndstopPin != 16 {
		t.Errorf("pan_stepper.endstop_pin = %d, want 16", cfg.PanStepper.EndstopPin)
	}
	if cfg.Observer.LatitudeDeg != 52.23 {
		t.Errorf("observer.latitude_deg = %v, want 52.23", cfg.Observer.LatitudeDeg)
	}
	if cfg.Tracking.CadenceS != 10 {
		t.Errorf("tracking.cadence_s = %d, want 10", cfg.Tracking.CadenceS)
	}
	if cfg.Tracking.TiltSign != 1 {
		t.Errorf("tracking.tilt_sign = %d, want 1", cfg.Tracking.TiltSign)
	}
	if cfg.Tracking.Origin != OriginCalibration {
		t.Errorf("tracking.origin = %q, want %q", cfg.Tracking.Origin, OriginCalibration)
	}
	if cfg.Transport.Addr != "192.168.4.1:3333" {
		t.Errorf("transport.addr = %q", cfg.Transport.Addr)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "defaults:\n  mock_gpio: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"cadence_s", cfg.Tracking.CadenceS, 4},
		{"round_s", cfg.Tracking.RoundS, 60},
		{"lead_time_s", cfg.Tracking.LeadTimeS, 60},
		{"tick_ms", cfg.Tracking.TickMs, 100},
		{"axis_delay_ms", cfg.Tracking.AxisDelayMs, 100},
		{"buffer_capacity", cfg.Tracking.BufferCapacity, 1024},
		{"tilt_sign", cfg.Tracking.TiltSign, -1},
		{"origin", cfg.Tracking.Origin, OriginFirstSample},
		{"strategy", cfg.Tracking.Strategy, "dispatch"},
		{"pan_speed", cfg.Tracking.PanSpeed, 1000.0},
		{"tilt_speed", cfg.Tracking.TiltSpeed, 500.0},
		{"homing.speed", cfg.Homing.Speed, 400.0},
		{"homing.backoff_steps", cfg.Homing.BackoffSteps, 200},
		{"homing.target_az_deg", cfg.Homing.TargetAzDeg, 180.0},
		{"homing.target_el_deg", cfg.Homing.TargetElDeg, 45.0},
		{"ephemeris.column_ra", cfg.Ephemeris.ColumnRA, 3},
		{"ephemeris.column_dec", cfg.Ephemeris.ColumnDec, 4},
		{"transport.type", cfg.Transport.Type, "stdout"},
		{"transport.topic", cfg.Transport.Topic, "skytrack/cmd"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s default = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SKYTRACK_TRACKING__CADENCE_S", "30")
	t.Setenv("SKYTRACK_OBSERVER__LONGITUDE_DEG", "-74.0")
	t.Setenv("SKYTRACK_TRANSPORT__TYPE", "mqtt")
	t.Setenv("SKYTRACK_TRANSPORT__BROKER", "tcp://localhost:1883")

	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracking.CadenceS != 30 {
		t.Errorf("env cadence = %d, want 30", cfg.Tracking.CadenceS)
	}
	if cfg.Observer.LongitudeDeg != -74.0 {
		t.Errorf("env longitude = %v, want -74", cfg.Observer.LongitudeDeg)
	}
	if cfg.Transport.Type != "mqtt" || cfg.Transport.Broker != "tcp://localhost:1883" {
		t.Errorf("env transport = %+v", cfg.Transport)
	}
	// Values not overridden keep the file content.
	if cfg.Observer.LatitudeDeg != 52.23 {
		t.Errorf("latitude changed by env overlay: %v", cfg.Observer.LatitudeDeg)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"latitude_out_of_range", "observer:\n  latitude_deg: 91\n"},
		{"longitude_out_of_range", "observer:\n  longitude_deg: -181\n"},
		{"tilt_sign", "tracking:\n  tilt_sign: 2\n"},
		{"origin", "tracking:\n  origin: previous\n"},
		{"strategy", "tracking:\n  strategy: teleport\n"},
		{"tcp_without_addr", "transport:\n  type: tcp\n"},
		{"mqtt_without_broker", "transport:\n  type: mqtt\n"},
		{"unknown_transport", "transport:\n  type: carrier_pigeon\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := []byte(strings.Repeat("#", MaxConfigFileBytes+1))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	path := writeConfig(t, "unknown_section:\n  foo: bar\n")
	if _, err := Load(path); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- Helper methods ----------

func TestStepperConfig_DegreesPerStep(t *testing.T) {
	cases := []struct {
		name string
		s    StepperConfig
		want float64
	}{
		// 200 steps * 8 microsteps * 180/14 gearing = 20571.43 steps per output turn
		{"geared_pan", StepperConfig{StepsPerRev: 200, Microstepping: 8, GearRatio: 180.0 / 14.0}, 14 * 1.8 / (8 * 180)},
		{"direct_drive", StepperConfig{StepsPerRev: 200, Microstepping: 16}, 360.0 / 3200.0},
		{"explicit_override", StepperConfig{StepsPerRev: 200, Microstepping: 16, DegPerStep: 0.01}, 0.01},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.s.DegreesPerStep()
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("DegreesPerStep() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := &Config{
		Tracking:  TrackingConfig{CadenceS: 4, RoundS: 60, LeadTimeS: 60, TickMs: 100, AxisDelayMs: 100, PrepDelayMs: 200},
		Ephemeris: EphemerisConfig{TimeoutMs: 1500, DurationMin: 60},
		Homing:    HomingConfig{StepDelayUs: 500},
	}
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"Cadence", cfg.Cadence(), 4 * time.Second},
		{"Round", cfg.Round(), time.Minute},
		{"LeadTime", cfg.LeadTime(), time.Minute},
		{"Tick", cfg.Tick(), 100 * time.Millisecond},
		{"AxisDelay", cfg.AxisDelay(), 100 * time.Millisecond},
		{"PrepDelay", cfg.PrepDelay(), 200 * time.Millisecond},
		{"EphemerisTimeout", cfg.EphemerisTimeout(), 1500 * time.Millisecond},
		{"TrackingWindow", cfg.TrackingWindow(), time.Hour},
		{"HomingStepDelay", cfg.HomingStepDelay(), 500 * time.Microsecond},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s() = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
