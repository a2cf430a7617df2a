package command

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/link/fake"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
		unknown bool
	}{
		{"takeoff", Command{Kind: TakeOff}, false, false},
		{"TAKEOFF", Command{Kind: TakeOff}, false, false},
		{"land\r", Command{Kind: Land}, false, false},
		{"command", Command{Kind: Handshake}, false, false},
		{"forward 50", Command{Kind: Forward, Value: 50}, false, false},
		{"  Backward   20 ", Command{Kind: Backward, Value: 20}, false, false},
		{"up 30", Command{Kind: Up, Value: 30}, false, false},
		{"down 30", Command{Kind: Down, Value: 30}, false, false},
		{"left 25", Command{Kind: Left, Value: 25}, false, false},
		{"right 25", Command{Kind: Right, Value: 25}, false, false},
		{"cw 90", Command{Kind: RotateCW, Value: 90}, false, false},
		{"ccw 45", Command{Kind: RotateCCW, Value: 45}, false, false},
		{"flip l", Command{Kind: Flip, Flip: core.FlipLeft}, false, false},
		{"flip B", Command{Kind: Flip, Flip: core.FlipBackward}, false, false},

		{"hover 5", Command{Kind: NoOp}, true, true},
		{"flip x", Command{}, true, false},
		{"flip", Command{}, true, false},
		{"forward", Command{}, true, false},
		{"forward ten", Command{}, true, false},
		{"forward 0", Command{}, true, false},
		{"forward -5", Command{}, true, false},
		{"forward 10 20", Command{}, true, false},
		{"takeoff now", Command{}, true, false},
		{"   ", Command{}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) err = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Unknown != tt.unknown {
				t.Errorf("Unknown = %v, want %v", pe.Unknown, tt.unknown)
			}
		})
	}
}

func TestParseIsIdempotent(t *testing.T) {
	for _, line := range []string{"forward 50", "flip x", "cw 90", "hover"} {
		a, errA := Parse(line)
		b, errB := Parse(line)
		if a != b {
			t.Errorf("Parse(%q) not stable: %+v vs %+v", line, a, b)
		}
		if (errA == nil) != (errB == nil) {
			t.Errorf("Parse(%q) error not stable: %v vs %v", line, errA, errB)
		}
	}
}

func TestParseRoundTripsString(t *testing.T) {
	for _, line := range []string{"takeoff", "forward 50", "cw 90", "flip r", "command"} {
		c, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		if c.String() != line {
			t.Errorf("String() = %q, want %q", c.String(), line)
		}
	}
}

func TestExecute(t *testing.T) {
	link := fake.New()
	ctx := context.Background()

	cmds := []Command{
		{Kind: Handshake},
		{Kind: TakeOff},
		{Kind: Up, Value: 20},
		{Kind: Down, Value: 21},
		{Kind: Forward, Value: 50},
		{Kind: Backward, Value: 51},
		{Kind: Left, Value: 30},
		{Kind: Right, Value: 31},
		{Kind: RotateCW, Value: 90},
		{Kind: RotateCCW, Value: 45},
		{Kind: Flip, Flip: core.FlipForward},
		{Kind: NoOp},
		{Kind: Land},
	}
	for _, c := range cmds {
		if err := Execute(ctx, link, c); err != nil {
			t.Fatalf("Execute(%v): %v", c, err)
		}
	}

	want := []string{
		"command", "takeoff", "up 20", "down 21", "forward 50", "back 51",
		"left 30", "right 31", "cw 90", "ccw 45", "flip f", "land",
	}
	if got := link.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestExecuteReturnsLinkError(t *testing.T) {
	link := fake.New()
	link.FailOn["takeoff"] = errors.New("error")

	err := Execute(context.Background(), link, Command{Kind: TakeOff})
	if !errors.Is(err, core.ErrLink) {
		t.Fatalf("expected link error, got %v", err)
	}
}

func TestKindMapping(t *testing.T) {
	if k, ok := MoveKind(core.MoveBackward); !ok || k != Backward {
		t.Errorf("MoveKind(back) = %v, %v", k, ok)
	}
	if k, ok := RotateKind(core.RotateCCW); !ok || k != RotateCCW {
		t.Errorf("RotateKind(ccw) = %v, %v", k, ok)
	}
	if _, ok := MoveKind("sideways"); ok {
		t.Error("MoveKind accepted an unknown direction")
	}
}
