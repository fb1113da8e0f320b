package protocol

import "strings"

// Direction is a manual or pulse direction.
type Direction int

const (
	None Direction = iota
	Up
	Down
	Left
	Right
)

var directionNames = map[Direction]string{
	None: "none", Up: "up", Down: "down", Left: "left", Right: "right",
}

func (d Direction) String() string {
	if s, ok := directionNames[d]; ok {
		return s
	}
	return "invalid"
}

// ParseDirection accepts the lower- or upper-case direction name.
func ParseDirection(s string) (Direction, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range directionNames {
		if name == s && d != None {
			return d, true
		}
	}
	return None, false
}

// Pan reports whether d moves the pan axis.
func (d Direction) Pan() bool { return d == Left || d == Right }

// Sign is +1 for Up/Right and -1 for Down/Left.
func (d Direction) Sign() int {
	switch d {
	case Up, Right:
		return 1
	case Down, Left:
		return -1
	}
	return 0
}

var (
	pulseKinds = map[Direction]Kind{Up: KindFUp, Down: KindFDown, Left: KindFLeft, Right: KindFRight}
	jogKinds   = map[Direction]Kind{Up: KindUp, Down: KindDown, Left: KindLeft, Right: KindRight}
	startKinds = map[Direction]Kind{Up: KindUpStart, Down: KindDownStart, Left: KindLeftStart, Right: KindRightStart}
)

// Mode says how a directional command moves the mount.
type Mode int

const (
	ModePulse      Mode = iota // one discrete tracking pulse
	ModeJog                    // one manual jog increment
	ModeContinuous             // run until STOP
)

// PulseCommand returns FUP/FDOWN/FLEFT/FRIGHT for d.
func PulseCommand(d Direction) (Command, bool) { return lookup(pulseKinds, d) }

// JogCommand returns UP/DOWN/LEFT/RIGHT for d.
func JogCommand(d Direction) (Command, bool) { return lookup(jogKinds, d) }

// StartCommand returns UP_START/DOWN_START/LEFT_START/RIGHT_START for d.
func StartCommand(d Direction) (Command, bool) { return lookup(startKinds, d) }

func lookup(m map[Direction]Kind, d Direction) (Command, bool) {
	k, ok := m[d]
	if !ok {
		return Command{}, false
	}
	return Simple(k), true
}

// DirectionOf maps a directional command back to its direction and mode.
func DirectionOf(k Kind) (Direction, Mode, bool) {
	for _, t := range []struct {
		m    map[Direction]Kind
		mode Mode
	}{{pulseKinds, ModePulse}, {jogKinds, ModeJog}, {startKinds, ModeContinuous}} {
		for d, kind := range t.m {
			if kind == k {
				return d, t.mode, true
			}
		}
	}
	return None, ModePulse, false
}

// PanPulse returns the pulse for a pan delta: FRIGHT when positive,
// FLEFT when negative, nothing when zero.
func PanPulse(delta int) (Command, bool) {
	switch {
	case delta > 0:
		return PulseCommand(Right)
	case delta < 0:
		return PulseCommand(Left)
	}
	return Command{}, false
}

// TiltPulse returns FUP for a positive tilt delta, FDOWN for a negative one.
func TiltPulse(delta int) (Command, bool) {
	switch {
	case delta > 0:
		return PulseCommand(Up)
	case delta < 0:
		return PulseCommand(Down)
	}
	return Command{}, false
}
