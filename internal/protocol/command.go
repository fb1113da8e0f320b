// Package protocol defines the newline-terminated text commands exchanged
// between the host and the mount controller.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownCommand is returned for a line whose keyword is not known.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformed is returned for a known keyword with bad arguments.
	ErrMalformed = errors.New("malformed command")
)

// Kind is the command keyword.
type Kind string

const (
	KindSyncTime Kind = "SYNC_TIME"
	KindPrep     Kind = "PREP"
	KindStep     Kind = "STEP"
	KindPoint    Kind = "POINT"
	KindTrack    Kind = "TRACK"

	KindFRight Kind = "FRIGHT"
	KindFLeft  Kind = "FLEFT"
	KindFUp    Kind = "FUP"
	KindFDown  Kind = "FDOWN"

	KindHome  Kind = "HOME"
	KindBreak Kind = "BREAK"
	KindStop  Kind = "STOP"

	KindUp    Kind = "UP"
	KindDown  Kind = "DOWN"
	KindLeft  Kind = "LEFT"
	KindRight Kind = "RIGHT"

	KindUpStart    Kind = "UP_START"
	KindDownStart  Kind = "DOWN_START"
	KindLeftStart  Kind = "LEFT_START"
	KindRightStart Kind = "RIGHT_START"
)

// arity is the number of arguments each keyword takes.
var arity = map[Kind]int{
	KindSyncTime: 1, KindPrep: 0, KindStep: 2, KindPoint: 3, KindTrack: 1,
	KindFRight: 0, KindFLeft: 0, KindFUp: 0, KindFDown: 0,
	KindHome: 0, KindBreak: 0, KindStop: 0,
	KindUp: 0, KindDown: 0, KindLeft: 0, KindRight: 0,
	KindUpStart: 0, KindDownStart: 0, KindLeftStart: 0, KindRightStart: 0,
}

// Command is one protocol line. Only the fields of its Kind are used.
type Command struct {
	Kind Kind

	EpochMs int64 // SYNC_TIME

	DeltaPan  int // STEP
	DeltaTilt int

	OffsetS float64 // POINT
	AzDeg   float64
	ElDeg   float64

	T0 time.Time // TRACK, whole seconds
}

// Simple returns an argument-less command.
func Simple(k Kind) Command { return Command{Kind: k} }

// SyncTime carries the host wall clock.
func SyncTime(now time.Time) Command {
	return Command{Kind: KindSyncTime, EpochMs: now.UnixMilli()}
}

// Step is the initial slew of a dispatched session.
func Step(deltaPan, deltaTilt int) Command {
	return Command{Kind: KindStep, DeltaPan: deltaPan, DeltaTilt: deltaTilt}
}

// Point uploads one trajectory point for the on-device follower.
func Point(offsetS, azDeg, elDeg float64) Command {
	return Command{Kind: KindPoint, OffsetS: offsetS, AzDeg: azDeg, ElDeg: elDeg}
}

// Track starts following the uploaded points at t0.
func Track(t0 time.Time) Command {
	return Command{Kind: KindTrack, T0: t0.Truncate(time.Second)}
}

// String renders the command without the trailing newline.
func (c Command) String() string {
	switch c.Kind {
	case KindSyncTime:
		return fmt.Sprintf("%s %d", c.Kind, c.EpochMs)
	case KindStep:
		return fmt.Sprintf("%s %d %d", c.Kind, c.DeltaPan, c.DeltaTilt)
	case KindPoint:
		return fmt.Sprintf("%s %s %s %s", c.Kind, ftoa(c.OffsetS), ftoa(c.AzDeg), ftoa(c.ElDeg))
	case KindTrack:
		return fmt.Sprintf("%s %d", c.Kind, c.T0.Unix())
	}
	return string(c.Kind)
}

// Line renders the command with its newline terminator.
func (c Command) Line() string { return c.String() + "\n" }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Parse decodes one line. Surrounding whitespace and the line terminator
// are ignored; keywords are case-sensitive.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	k := Kind(fields[0])
	n, ok := arity[k]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	args := fields[1:]
	if len(args) != n {
		return Command{}, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrMalformed, k, n, len(args))
	}

	c := Command{Kind: k}
	var err error
	switch k {
	case KindSyncTime:
		c.EpochMs, err = strconv.ParseInt(args[0], 10, 64)
	case KindStep:
		if c.DeltaPan, err = strconv.Atoi(args[0]); err == nil {
			c.DeltaTilt, err = strconv.Atoi(args[1])
		}
	case KindPoint:
		if c.OffsetS, err = strconv.ParseFloat(args[0], 64); err != nil {
			break
		}
		if c.AzDeg, err = strconv.ParseFloat(args[1], 64); err != nil {
			break
		}
		c.ElDeg, err = strconv.ParseFloat(args[2], 64)
	case KindTrack:
		var sec int64
		if sec, err = strconv.ParseInt(args[0], 10, 64); err == nil {
			c.T0 = time.Unix(sec, 0).UTC()
		}
	}
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s: %v", ErrMalformed, k, err)
	}
	return c, nil
}
