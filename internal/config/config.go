package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks validation failures so callers can errors.Is them.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix is the prefix of environment overrides. Nested keys use "__",
// e.g. SKYTRACK_TRACKING__CADENCE_S=10.
const EnvPrefix = "SKYTRACK_"

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Origin values for TrackingConfig.Origin.
const (
	OriginFirstSample = "first_sample"
	OriginCalibration = "calibration"
)

// StepperConfig holds the configuration for a stepper motor axis.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"`  // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	EndstopPin    int     `yaml:"endstop_pin"` // endstop input (BCM), pulled up, asserted LOW
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	GearRatio     float64 `yaml:"gear_ratio"`   // output turns per motor turn, inverted (e.g. 180/14)
	DegPerStep    float64 `yaml:"deg_per_step"` // explicit override; 0 = derive from the fields above
	InvertDir     bool    `yaml:"invert_dir"`
}

// DegreesPerStep returns the angle travelled by the axis per microstep.
func (s StepperConfig) DegreesPerStep() float64 {
	if s.DegPerStep > 0 {
		return s.DegPerStep
	}
	ratio := s.GearRatio
	if ratio <= 0 {
		ratio = 1
	}
	return 360.0 / (float64(s.StepsPerRev*s.Microstepping) * ratio)
}

// ObserverConfig is the default observer location.
type ObserverConfig struct {
	LatitudeDeg  float64 `yaml:"latitude_deg"`
	LongitudeDeg float64 `yaml:"longitude_deg"` // east positive
	AltitudeM    float64 `yaml:"altitude_m"`
}

// EphemerisConfig describes the remote catalog.
type EphemerisConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	StepSize    string `yaml:"step_size"`    // Horizons STEP_SIZE, e.g. "1 m"
	DurationMin int    `yaml:"duration_min"` // default tracking window
	ColumnRA    int    `yaml:"column_ra"`
	ColumnDec   int    `yaml:"column_dec"`
}

// TrackingConfig holds the session planning and dispatch constants.
type TrackingConfig struct {
	CadenceS       int     `yaml:"cadence_s"`       // resample cadence
	RoundS         int     `yaml:"round_s"`         // T0 is aligned on multiples of this
	LeadTimeS      int     `yaml:"lead_time_s"`     // added after the round instant
	TickMs         int     `yaml:"tick_ms"`         // dispatch poll interval
	AxisDelayMs    int     `yaml:"axis_delay_ms"`   // delay between pan and tilt pulses
	PrepDelayMs    int     `yaml:"prep_delay_ms"`   // pause between PREP and the first STEP
	BufferCapacity int     `yaml:"buffer_capacity"` // follower trajectory buffer
	TiltSign       int     `yaml:"tilt_sign"`       // +1 or -1, mechanical tilt direction
	Origin         string  `yaml:"origin"`          // first_sample | calibration
	PanSpeed       float64 `yaml:"pan_speed"`       // follower speed constant, steps/s
	TiltSpeed      float64 `yaml:"tilt_speed"`
	PulseSteps     int     `yaml:"pulse_steps"` // steps per discrete FRIGHT/FLEFT/FUP/FDOWN
	Strategy       string  `yaml:"strategy"`    // dispatch | follow
}

// HomingConfig holds calibration constants.
type HomingConfig struct {
	Speed        float64 `yaml:"speed"` // steps/s toward the endstop
	BackoffSteps int     `yaml:"backoff_steps"`
	MaxSteps     int     `yaml:"max_steps"` // 0 = unbounded
	TargetAzDeg  float64 `yaml:"target_az_deg"`
	TargetElDeg  float64 `yaml:"target_el_deg"`
	StepDelayUs  int     `yaml:"step_delay_us"` // open-loop reposition half-pulse
}

// ManualConfig holds jog parameters.
type ManualConfig struct {
	JogSteps int     `yaml:"jog_steps"`
	Speed    float64 `yaml:"speed"` // continuous jog, steps/s
}

// SensorConfig selects the orientation sensor. Only "static" is available
// without extra hardware drivers; it reports the configured vectors.
type SensorConfig struct {
	Type   string     `yaml:"type"`
	Mag    [3]float64 `yaml:"mag"`
	Accel  [3]float64 `yaml:"accel"`
	Absent bool       `yaml:"absent"` // simulate a missing sensor
}

// TransportConfig describes the command link.
type TransportConfig struct {
	Type     string `yaml:"type"` // tcp | mqtt | stdout
	Addr     string `yaml:"addr"` // tcp host:port
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// StorageConfig locates the session journal.
type StorageConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	PanStepper  StepperConfig   `yaml:"pan_stepper"`
	TiltStepper StepperConfig   `yaml:"tilt_stepper"`
	Observer    ObserverConfig  `yaml:"observer"`
	Ephemeris   EphemerisConfig `yaml:"ephemeris"`
	Tracking    TrackingConfig  `yaml:"tracking"`
	Homing      HomingConfig    `yaml:"homing"`
	Manual      ManualConfig    `yaml:"manual"`
	Sensor      SensorConfig    `yaml:"sensor"`
	Transport   TransportConfig `yaml:"transport"`
	Storage     StorageConfig   `yaml:"storage"`
	Defaults    DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files that live directly in a
// "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: config path is empty", ErrInvalidConfig)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("%w: config file must have .yaml extension: %s", ErrInvalidConfig, path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("%w: config file must be in a configs/ directory: %s", ErrInvalidConfig, path)
	}
	return nil
}

// Load reads a YAML file, applies SKYTRACK_ environment overrides and
// returns the validated configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("%w: config file is %d bytes, limit %d", ErrInvalidConfig, info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays SKYTRACK_* variables onto cfg. Keys map onto yaml tags:
// SKYTRACK_OBSERVER__LATITUDE_DEG -> observer.latitude_deg.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(provider, nil); err != nil {
		return err
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"})
}

func applyDefaults(cfg *Config) {
	for _, s := range []*StepperConfig{&cfg.PanStepper, &cfg.TiltStepper} {
		if s.StepsPerRev <= 0 {
			s.StepsPerRev = 200
		}
		if s.Microstepping <= 0 {
			s.Microstepping = 8
		}
	}
	if cfg.PanStepper.GearRatio <= 0 {
		cfg.PanStepper.GearRatio = 180.0 / 14.0
	}
	if cfg.TiltStepper.GearRatio <= 0 {
		cfg.TiltStepper.GearRatio = 84.0 / 14.0
	}

	e := &cfg.Ephemeris
	if e.BaseURL == "" {
		e.BaseURL = "https://ssd.jpl.nasa.gov/api/horizons.api"
	}
	if e.TimeoutMs <= 0 {
		e.TimeoutMs = 15000
	}
	if e.StepSize == "" {
		e.StepSize = "1 m"
	}
	if e.DurationMin <= 0 {
		e.DurationMin = 60
	}
	if e.ColumnRA <= 0 {
		e.ColumnRA = 3
	}
	if e.ColumnDec <= 0 {
		e.ColumnDec = 4
	}

	t := &cfg.Tracking
	if t.CadenceS <= 0 {
		t.CadenceS = 4
	}
	if t.RoundS <= 0 {
		t.RoundS = 60
	}
	if t.LeadTimeS <= 0 {
		t.LeadTimeS = 60
	}
	if t.TickMs <= 0 {
		t.TickMs = 100
	}
	if t.AxisDelayMs <= 0 {
		t.AxisDelayMs = 100
	}
	if t.PrepDelayMs <= 0 {
		t.PrepDelayMs = 200
	}
	if t.BufferCapacity <= 0 {
		t.BufferCapacity = 1024
	}
	if t.TiltSign == 0 {
		t.TiltSign = -1
	}
	if t.Origin == "" {
		t.Origin = OriginFirstSample
	}
	if t.PanSpeed <= 0 {
		t.PanSpeed = 1000
	}
	if t.TiltSpeed <= 0 {
		t.TiltSpeed = 500
	}
	if t.PulseSteps <= 0 {
		t.PulseSteps = 1
	}
	if t.Strategy == "" {
		t.Strategy = "dispatch"
	}

	h := &cfg.Homing
	if h.Speed <= 0 {
		h.Speed = 400
	}
	if h.BackoffSteps <= 0 {
		h.BackoffSteps = 200
	}
	if h.TargetAzDeg == 0 && h.TargetElDeg == 0 {
		h.TargetAzDeg, h.TargetElDeg = 180, 45
	}
	if h.StepDelayUs <= 0 {
		h.StepDelayUs = 500
	}

	if cfg.Manual.JogSteps <= 0 {
		cfg.Manual.JogSteps = 50
	}
	if cfg.Manual.Speed <= 0 {
		cfg.Manual.Speed = 400
	}
	if cfg.Sensor.Type == "" {
		cfg.Sensor.Type = "static"
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "stdout"
	}
	if cfg.Transport.Topic == "" {
		cfg.Transport.Topic = "skytrack/cmd"
	}
	if cfg.Transport.ClientID == "" {
		cfg.Transport.ClientID = "skytrack"
	}
}

// Validate checks ranges that defaults cannot repair.
func (c *Config) Validate() error {
	o := c.Observer
	if math.IsNaN(o.LatitudeDeg) || o.LatitudeDeg < -90 || o.LatitudeDeg > 90 {
		return fmt.Errorf("%w: observer.latitude_deg must be between -90 and 90, got %.4f", ErrInvalidConfig, o.LatitudeDeg)
	}
	if math.IsNaN(o.LongitudeDeg) || o.LongitudeDeg < -180 || o.LongitudeDeg > 180 {
		return fmt.Errorf("%w: observer.longitude_deg must be between -180 and 180, got %.4f", ErrInvalidConfig, o.LongitudeDeg)
	}
	if c.Tracking.TiltSign != 1 && c.Tracking.TiltSign != -1 {
		return fmt.Errorf("%w: tracking.tilt_sign must be 1 or -1, got %d", ErrInvalidConfig, c.Tracking.TiltSign)
	}
	switch c.Tracking.Origin {
	case OriginFirstSample, OriginCalibration:
	default:
		return fmt.Errorf("%w: tracking.origin must be %q or %q, got %q", ErrInvalidConfig, OriginFirstSample, OriginCalibration, c.Tracking.Origin)
	}
	switch c.Tracking.Strategy {
	case "dispatch", "follow":
	default:
		return fmt.Errorf("%w: tracking.strategy must be dispatch or follow, got %q", ErrInvalidConfig, c.Tracking.Strategy)
	}
	switch c.Transport.Type {
	case "stdout":
	case "tcp":
		if c.Transport.Addr == "" {
			return fmt.Errorf("%w: transport.addr is required for tcp", ErrInvalidConfig)
		}
	case "mqtt":
		if c.Transport.Broker == "" {
			return fmt.Errorf("%w: transport.broker is required for mqtt", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported transport type %q", ErrInvalidConfig, c.Transport.Type)
	}
	if c.Homing.TargetElDeg < -90 || c.Homing.TargetElDeg > 90 {
		return fmt.Errorf("%w: homing.target_el_deg must be between -90 and 90, got %.2f", ErrInvalidConfig, c.Homing.TargetElDeg)
	}
	return nil
}

// Cadence returns the resample cadence.
func (c *Config) Cadence() time.Duration {
	return time.Duration(c.Tracking.CadenceS) * time.Second
}

// Round returns the T0 alignment unit.
func (c *Config) Round() time.Duration {
	return time.Duration(c.Tracking.RoundS) * time.Second
}

// LeadTime returns the lead added after the round instant.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.Tracking.LeadTimeS) * time.Second
}

// Tick returns the dispatch poll interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Tracking.TickMs) * time.Millisecond
}

// AxisDelay returns the pause between a pan pulse and the matching tilt pulse.
func (c *Config) AxisDelay() time.Duration {
	return time.Duration(c.Tracking.AxisDelayMs) * time.Millisecond
}

// PrepDelay returns the pause between PREP and the initial STEP.
func (c *Config) PrepDelay() time.Duration {
	return time.Duration(c.Tracking.PrepDelayMs) * time.Millisecond
}

// EphemerisTimeout returns the catalog request timeout.
func (c *Config) EphemerisTimeout() time.Duration {
	return time.Duration(c.Ephemeris.TimeoutMs) * time.Millisecond
}

// TrackingWindow returns the default tracking duration.
func (c *Config) TrackingWindow() time.Duration {
	return time.Duration(c.Ephemeris.DurationMin) * time.Minute
}

// HomingStepDelay returns the half-pulse delay used during repositioning.
func (c *Config) HomingStepDelay() time.Duration {
	return time.Duration(c.Homing.StepDelayUs) * time.Microsecond
}
