package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session plan, calibration result)
	LevelLive    = 2 // Live info (commands sent, pulses, speeds)
	LevelVerbose = 3 // Verbose (pipeline details, angles, steps)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	logger *zap.SugaredLogger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (plan summary, calibration reference)
// 2 = live info (protocol commands, motor speed changes)
// 3 = verbose (transform/resample/encode details)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = newLogger(out)
	}
}

// SetOutput redirects debug output, e.g. to tee it into the status stream.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = zapcore.Lock(zapcore.AddSync(w))
	if logger != nil {
		logger = newLogger(out)
	}
}

func newLogger(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), ws, zapcore.DebugLevel)
	return zap.New(core).Named("SkyTrack").Sugar()
}

// get returns the logger when the level is reached, nil otherwise.
func get(minLevel int) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return nil
	}
	return logger
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Sync flushes the underlying zap core.
func Sync() {
	if l := get(LevelInfo); l != nil {
		_ = l.Sync()
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := get(LevelInfo); l != nil {
		l.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if l := get(LevelInfo); l != nil {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if l := get(LevelInfo); l != nil {
		l.Infof("  %s = %v", name, value)
	}
}

// Error prints a debug error (level 1+).
func Error(err error) {
	if l := get(LevelInfo); l != nil {
		l.Errorf("%v", err)
	}
}

// Warn prints a recoverable problem (level 1+).
func Warn(format string, args ...interface{}) {
	if l := get(LevelInfo); l != nil {
		l.Warnf(format, args...)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] "+format, args...)
	}
}

// Move prints a motor movement (level 2).
func Move(motor string, steps int, direction string) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] Motor %s: %d steps (%s)", motor, steps, direction)
	}
}

// Command prints a protocol line crossing the link (level 2).
// dir is "tx" or "rx".
func Command(dir, line string) {
	if l := get(LevelLive); l != nil {
		l.Infof("[LIVE] %s %s", dir, line)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] "+format, args...)
	}
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] %s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := get(LevelVerbose); l != nil {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := get(LevelVerbose); l != nil {
		l.Debugf("[VERBOSE] Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if l := get(LevelTrace); l != nil {
		l.Debugf("[TRACE] "+format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := get(LevelTrace); l != nil {
		l.Debugf("[GPIO] %s pin=%d value=%v", operation, pin, value)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
