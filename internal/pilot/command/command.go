// Package command parses route lines and operator actions into Commands and
// dispatches them to a drone link.
package command

import (
	"context"
	"fmt"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

// Kind identifies what a Command does.
type Kind int

const (
	NoOp Kind = iota
	Handshake
	TakeOff
	Land
	Up
	Down
	Forward
	Backward
	Left
	Right
	RotateCW
	RotateCCW
	Flip
)

var kindNames = map[Kind]string{
	NoOp:      "noop",
	Handshake: "command",
	TakeOff:   "takeoff",
	Land:      "land",
	Up:        "up",
	Down:      "down",
	Forward:   "forward",
	Backward:  "backward",
	Left:      "left",
	Right:     "right",
	RotateCW:  "cw",
	RotateCCW: "ccw",
	Flip:      "flip",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is a single drone instruction. Value holds the distance in cm for
// moves and the angle in degrees for rotations. Commands compare with ==.
type Command struct {
	Kind  Kind
	Value int
	Flip  core.FlipDirection
}

func (c Command) String() string {
	switch c.Kind {
	case Up, Down, Forward, Backward, Left, Right, RotateCW, RotateCCW:
		return fmt.Sprintf("%s %d", c.Kind, c.Value)
	case Flip:
		return fmt.Sprintf("%s %s", c.Kind, c.Flip)
	default:
		return c.Kind.String()
	}
}

// Execute sends c to link. NoOp never touches the link.
func Execute(ctx context.Context, link core.Link, c Command) error {
	switch c.Kind {
	case NoOp:
		return nil
	case Handshake:
		return link.SendControlCommand(ctx)
	case TakeOff:
		return link.TakeOff(ctx)
	case Land:
		return link.Land(ctx)
	case Up:
		return link.Move(ctx, core.MoveUp, c.Value)
	case Down:
		return link.Move(ctx, core.MoveDown, c.Value)
	case Forward:
		return link.Move(ctx, core.MoveForward, c.Value)
	case Backward:
		return link.Move(ctx, core.MoveBackward, c.Value)
	case Left:
		return link.Move(ctx, core.MoveLeft, c.Value)
	case Right:
		return link.Move(ctx, core.MoveRight, c.Value)
	case RotateCW:
		return link.Rotate(ctx, core.RotateCW, c.Value)
	case RotateCCW:
		return link.Rotate(ctx, core.RotateCCW, c.Value)
	case Flip:
		return link.Flip(ctx, c.Flip)
	default:
		return fmt.Errorf("unhandled command kind %v", c.Kind)
	}
}

// MoveKind maps a move direction onto its Kind.
func MoveKind(dir core.MoveDirection) (Kind, bool) {
	switch dir {
	case core.MoveUp:
		return Up, true
	case core.MoveDown:
		return Down, true
	case core.MoveForward:
		return Forward, true
	case core.MoveBackward:
		return Backward, true
	case core.MoveLeft:
		return Left, true
	case core.MoveRight:
		return Right, true
	}
	return NoOp, false
}

// RotateKind maps a rotation direction onto its Kind.
func RotateKind(dir core.RotateDirection) (Kind, bool) {
	switch dir {
	case core.RotateCW:
		return RotateCW, true
	case core.RotateCCW:
		return RotateCCW, true
	}
	return NoOp, false
}
