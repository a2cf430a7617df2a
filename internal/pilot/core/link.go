package core

import (
	"context"
)

// MoveDirection is a translation axis of the drone.
type MoveDirection string

const (
	MoveUp       MoveDirection = "up"
	MoveDown     MoveDirection = "down"
	MoveForward  MoveDirection = "forward"
	MoveBackward MoveDirection = "back"
	MoveLeft     MoveDirection = "left"
	MoveRight    MoveDirection = "right"
)

// RotateDirection is the yaw direction.
type RotateDirection string

const (
	RotateCW  RotateDirection = "cw"
	RotateCCW RotateDirection = "ccw"
)

// FlipDirection is one of l, r, f, b.
type FlipDirection string

const (
	FlipLeft     FlipDirection = "l"
	FlipRight    FlipDirection = "r"
	FlipForward  FlipDirection = "f"
	FlipBackward FlipDirection = "b"
)

// Valid reports whether d is one of the four flip directions.
func (d FlipDirection) Valid() bool {
	switch d {
	case FlipLeft, FlipRight, FlipForward, FlipBackward:
		return true
	}
	return false
}

// ParseMoveDirection accepts the API spelling of a move direction
// ("backward" is accepted for MoveBackward).
func ParseMoveDirection(s string) (MoveDirection, bool) {
	switch s {
	case "up":
		return MoveUp, true
	case "down":
		return MoveDown, true
	case "forward":
		return MoveForward, true
	case "back", "backward":
		return MoveBackward, true
	case "left":
		return MoveLeft, true
	case "right":
		return MoveRight, true
	}
	return "", false
}

// Link is the device boundary: the command channel plus the decoded video
// stream of one drone. Device calls block until the drone answers or ctx
// expires and report failures as *LinkError.
type Link interface {
	// SendControlCommand enters SDK mode ("command").
	SendControlCommand(ctx context.Context) error
	TakeOff(ctx context.Context) error
	Land(ctx context.Context) error
	Move(ctx context.Context, dir MoveDirection, cm int) error
	Rotate(ctx context.Context, dir RotateDirection, degrees int) error
	Flip(ctx context.Context, dir FlipDirection) error

	// ReadFrame returns the most recent decoded frame, or nil when none has
	// arrived yet. It never blocks.
	ReadFrame() *Frame

	// SetVideoFreeze makes ReadFrame keep returning the frame current at the
	// time of freezing until unfrozen.
	SetVideoFreeze(frozen bool)

	Close() error
}

// FrameNotifier is implemented by links that can signal a new frame. The
// channel receives at most one pending notification.
type FrameNotifier interface {
	FrameReady() <-chan struct{}
}

// VideoStreamer is implemented by links whose video must be switched on
// explicitly after the handshake.
type VideoStreamer interface {
	StreamOn(ctx context.Context) error
}
