package debug

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func withBuffer(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	Init(lvl)
	t.Cleanup(func() {
		Init(LevelOff)
		SetOutput(os.Stdout)
	})
	return buf
}

func TestDebug_OffPrintsNothing(t *testing.T) {
	buf := withBuffer(t, LevelOff)
	Info("hidden %d", 1)
	Error(errors.New("hidden"))
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestDebug_LevelGating(t *testing.T) {
	buf := withBuffer(t, LevelLive)

	Info("info line")
	Live("live line")
	Verbose("verbose line")
	Trace("trace line")

	got := buf.String()
	if !strings.Contains(got, "info line") {
		t.Error("info line missing at level 2")
	}
	if !strings.Contains(got, "live line") {
		t.Error("live line missing at level 2")
	}
	if strings.Contains(got, "verbose line") || strings.Contains(got, "trace line") {
		t.Errorf("verbose/trace leaked at level 2: %q", got)
	}
}

func TestDebug_CommandAndMove(t *testing.T) {
	buf := withBuffer(t, LevelLive)

	Command("tx", "FRIGHT")
	Move("pan", 12, "forward")

	got := buf.String()
	if !strings.Contains(got, "tx FRIGHT") {
		t.Errorf("command line missing: %q", got)
	}
	if !strings.Contains(got, "Motor pan: 12 steps (forward)") {
		t.Errorf("move line missing: %q", got)
	}
}

func TestDebug_SetOutputAfterInit(t *testing.T) {
	withBuffer(t, LevelInfo)
	second := &bytes.Buffer{}
	SetOutput(second)

	Value("Cadence", "4s")
	if !strings.Contains(second.String(), "Cadence = 4s") {
		t.Errorf("value not written to new output: %q", second.String())
	}
}

func TestDebug_FmtOnlyWhenEnabled(t *testing.T) {
	withBuffer(t, LevelOff)
	if s := Fmt("%d", 42); s != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", s)
	}
	Init(LevelInfo)
	if s := Fmt("%d", 42); s != "42" {
		t.Errorf("Fmt at level 1 = %q, want \"42\"", s)
	}
	if !IsEnabled(LevelInfo) || IsEnabled(LevelTrace) {
		t.Error("IsEnabled does not follow the current level")
	}
}
