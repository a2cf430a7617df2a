package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
)

// ErrInvalidAction wraps malformed operator requests.
var ErrInvalidAction = errors.New("invalid action")

// Dispatch performs a on op and returns the action result, if any.
func Dispatch(ctx context.Context, op Operator, a Action) (any, error) {
	switch a.Action {
	case ActionLoad:
		if a.Path == "" {
			return nil, fmt.Errorf("%w: load needs a path", ErrInvalidAction)
		}
		return op.LoadRoute(ctx, a.Path)
	case ActionRun:
		id, err := op.RunRoute(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"runId": id}, nil
	case ActionStop:
		op.StopRoute()
		return nil, nil
	case ActionHandshake:
		return nil, op.Handshake(ctx)
	case ActionTakeOff:
		return nil, op.TakeOff(ctx)
	case ActionLand:
		return nil, op.Land(ctx)
	case ActionFlip:
		dir := core.FlipDirection(a.Direction)
		if !dir.Valid() {
			return nil, fmt.Errorf("%w: flip direction %q", ErrInvalidAction, a.Direction)
		}
		return nil, op.Flip(ctx, dir)
	case ActionMove:
		dir, ok := core.ParseMoveDirection(a.Direction)
		if !ok {
			return nil, fmt.Errorf("%w: move direction %q", ErrInvalidAction, a.Direction)
		}
		return nil, op.Move(ctx, dir, a.Value)
	case ActionRotate:
		dir := core.RotateDirection(a.Direction)
		if dir != core.RotateCW && dir != core.RotateCCW {
			return nil, fmt.Errorf("%w: rotate direction %q", ErrInvalidAction, a.Direction)
		}
		return nil, op.Rotate(ctx, dir, a.Value)
	case ActionSetDistance:
		return nil, op.SetDefaultDistance(a.Value)
	case ActionSetRotation:
		return nil, op.SetDefaultRotation(a.Value)
	case ActionVideo:
		if a.Paused == nil {
			return nil, fmt.Errorf("%w: video needs paused", ErrInvalidAction)
		}
		op.SetVideoPaused(*a.Paused)
		return nil, nil
	case ActionSnapshot:
		return op.Snapshot(ctx)
	case ActionStatus:
		return op.Status(), nil
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, a.Action)
}
