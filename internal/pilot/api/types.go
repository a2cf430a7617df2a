// Package api holds the operator-facing types shared by the HTTP and MQTT
// surfaces of a pilot.
package api

import (
	"context"
	"time"

	"github.com/autopeer-io/skypeer/internal/pilot/core"
	"github.com/autopeer-io/skypeer/internal/pilot/runner"
	"github.com/autopeer-io/skypeer/internal/pilot/snapshot"
	"github.com/autopeer-io/skypeer/internal/pilot/video"
)

// Status is the session status reported to operators.
type Status struct {
	DroneID string `json:"droneId"`

	// RoutePending is set while a loaded route has not been run yet.
	RoutePending bool   `json:"routePending"`
	RouteSource  string `json:"routeSource,omitempty"`
	RouteSteps   int    `json:"routeSteps"`

	Runner runner.Status `json:"runner"`

	DefaultDistance int `json:"defaultDistance"`
	DefaultRotation int `json:"defaultRotation"`

	VideoPaused bool        `json:"videoPaused"`
	Video       video.Stats `json:"video"`

	Time time.Time `json:"time"`
}

// RouteInfo summarizes a freshly loaded route.
type RouteInfo struct {
	Source      string   `json:"source"`
	Steps       int      `json:"steps"`
	Malformed   int      `json:"malformed"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Action is an operator request. It is the MQTT command payload and the body
// of the generic HTTP action endpoint.
type Action struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`

	// Path is the route file for "load".
	Path string `json:"path,omitempty"`
	// Direction is a move, rotate or flip direction.
	Direction string `json:"direction,omitempty"`
	// Value is a distance in cm or an angle in degrees. Zero means the
	// session default.
	Value int `json:"value,omitempty"`
	// Paused is used by "video".
	Paused *bool `json:"paused,omitempty"`
}

// Action names.
const (
	ActionLoad        = "load"
	ActionRun         = "run"
	ActionStop        = "stop"
	ActionHandshake   = "command"
	ActionTakeOff     = "takeoff"
	ActionLand        = "land"
	ActionFlip        = "flip"
	ActionMove        = "move"
	ActionRotate      = "rotate"
	ActionSetDistance = "set_distance"
	ActionSetRotation = "set_rotation"
	ActionVideo       = "video"
	ActionSnapshot    = "snapshot"
	ActionStatus      = "status"
)

// Ack answers an Action.
type Ack struct {
	RequestID string    `json:"requestId,omitempty"`
	Action    string    `json:"action"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	Time      time.Time `json:"time"`
}

// Online is published on the online topic and as the MQTT last will.
type Online struct {
	DroneID string `json:"droneId"`
	Online  bool   `json:"online"`
	Reason  string `json:"reason,omitempty"`
}

// Operator is the set of session operations exposed to remote operators.
type Operator interface {
	LoadRoute(ctx context.Context, path string) (RouteInfo, error)
	RunRoute(ctx context.Context) (string, error)
	StopRoute()

	Handshake(ctx context.Context) error
	TakeOff(ctx context.Context) error
	Land(ctx context.Context) error
	Flip(ctx context.Context, dir core.FlipDirection) error
	Move(ctx context.Context, dir core.MoveDirection, cm int) error
	Rotate(ctx context.Context, dir core.RotateDirection, degrees int) error

	SetDefaultDistance(cm int) error
	SetDefaultRotation(degrees int) error
	SetVideoPaused(paused bool)

	Snapshot(ctx context.Context) (snapshot.Result, error)
	Status() Status
}
