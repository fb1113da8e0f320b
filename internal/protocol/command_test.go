package protocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/skytrack/internal/protocol"
	"github.com/smartystreets/goconvey/convey"
)

func TestCommandRendering(t *testing.T) {
	convey.Convey("Given protocol commands", t, func() {
		convey.Convey("Argument-less commands render as their keyword", func() {
			convey.So(protocol.Simple(protocol.KindPrep).String(), convey.ShouldEqual, "PREP")
			convey.So(protocol.Simple(protocol.KindBreak).Line(), convey.ShouldEqual, "BREAK\n")
		})

		convey.Convey("SYNC_TIME carries epoch milliseconds", func() {
			now := time.Date(2024, 1, 15, 3, 45, 0, 123_000_000, time.UTC)
			convey.So(protocol.SyncTime(now).String(), convey.ShouldEqual, "SYNC_TIME 1705290300123")
		})

		convey.Convey("STEP carries signed deltas", func() {
			convey.So(protocol.Step(-120, 37).String(), convey.ShouldEqual, "STEP -120 37")
		})

		convey.Convey("POINT and TRACK carry the follower upload", func() {
			convey.So(protocol.Point(4, 181.25, -3.5).String(), convey.ShouldEqual, "POINT 4 181.25 -3.5")
			t0 := time.Date(2024, 1, 15, 3, 47, 0, 500, time.UTC)
			convey.So(protocol.Track(t0).String(), convey.ShouldEqual, "TRACK 1705290420")
		})
	})
}

func TestParse(t *testing.T) {
	convey.Convey("Given a line parser", t, func() {
		convey.Convey("When the line is well formed", func() {
			c, err := protocol.Parse("STEP 12 -4\n")
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.Kind, convey.ShouldEqual, protocol.KindStep)
			convey.So(c.DeltaPan, convey.ShouldEqual, 12)
			convey.So(c.DeltaTilt, convey.ShouldEqual, -4)

			c, err = protocol.Parse("  SYNC_TIME 1705290300123  \r\n")
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.EpochMs, convey.ShouldEqual, int64(1705290300123))

			c, err = protocol.Parse("POINT 8.5 200.125 33")
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.OffsetS, convey.ShouldEqual, 8.5)
			convey.So(c.AzDeg, convey.ShouldEqual, 200.125)
			convey.So(c.ElDeg, convey.ShouldEqual, 33.0)

			c, err = protocol.Parse("TRACK 1705290420")
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.T0.Equal(time.Unix(1705290420, 0)), convey.ShouldBeTrue)
		})

		convey.Convey("When a rendered command is parsed back", func() {
			for _, in := range []protocol.Command{
				protocol.Step(5, -6),
				protocol.Simple(protocol.KindFRight),
				protocol.Simple(protocol.KindLeftStart),
				protocol.Point(12, 90.5, 10.25),
			} {
				out, err := protocol.Parse(in.Line())
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldResemble, in)
			}
		})

		convey.Convey("When the keyword is unknown", func() {
			_, err := protocol.Parse("JUMP 3")
			convey.So(errors.Is(err, protocol.ErrUnknownCommand), convey.ShouldBeTrue)

			_, err = protocol.Parse("step 1 2")
			convey.So(errors.Is(err, protocol.ErrUnknownCommand), convey.ShouldBeTrue)
		})

		convey.Convey("When arguments are wrong", func() {
			for _, line := range []string{"", "   ", "STEP 1", "STEP a b", "PREP now", "SYNC_TIME", "SYNC_TIME 1.5", "POINT 1 2", "POINT x 2 3"} {
				_, err := protocol.Parse(line)
				convey.So(errors.Is(err, protocol.ErrMalformed), convey.ShouldBeTrue)
			}
		})
	})
}

func TestDirections(t *testing.T) {
	convey.Convey("Given the direction tables", t, func() {
		convey.Convey("Pulse commands follow the delta sign", func() {
			c, ok := protocol.PanPulse(3)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(c.Kind, convey.ShouldEqual, protocol.KindFRight)
			c, _ = protocol.PanPulse(-1)
			convey.So(c.Kind, convey.ShouldEqual, protocol.KindFLeft)
			c, _ = protocol.TiltPulse(2)
			convey.So(c.Kind, convey.ShouldEqual, protocol.KindFUp)
			c, _ = protocol.TiltPulse(-2)
			convey.So(c.Kind, convey.ShouldEqual, protocol.KindFDown)
			_, ok = protocol.TiltPulse(0)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Every directional keyword maps back to one direction and mode", func() {
			cases := []struct {
				kind protocol.Kind
				dir  protocol.Direction
				mode protocol.Mode
			}{
				{protocol.KindFUp, protocol.Up, protocol.ModePulse},
				{protocol.KindLeft, protocol.Left, protocol.ModeJog},
				{protocol.KindRightStart, protocol.Right, protocol.ModeContinuous},
				{protocol.KindDownStart, protocol.Down, protocol.ModeContinuous},
			}
			for _, tc := range cases {
				d, m, ok := protocol.DirectionOf(tc.kind)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(d, convey.ShouldEqual, tc.dir)
				convey.So(m, convey.ShouldEqual, tc.mode)
			}
			_, _, ok := protocol.DirectionOf(protocol.KindHome)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("None has no command", func() {
			_, ok := protocol.JogCommand(protocol.None)
			convey.So(ok, convey.ShouldBeFalse)
			_, ok = protocol.StartCommand(protocol.None)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Names parse case-insensitively", func() {
			d, ok := protocol.ParseDirection("LEFT")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(d, convey.ShouldEqual, protocol.Left)
			convey.So(d.Pan(), convey.ShouldBeTrue)
			convey.So(d.Sign(), convey.ShouldEqual, -1)
			_, ok = protocol.ParseDirection("none")
			convey.So(ok, convey.ShouldBeFalse)
			_, ok = protocol.ParseDirection("sideways")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}
