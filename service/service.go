// Package service defines the interfaces to the external navigation,
// filter, CAN, and camera services that the mission core depends on.
// The wire protocol implementing these interfaces (event-subscribe +
// request-reply to the real robot services) is explicitly out of scope
// per spec.md §1; this package only models the duck-typed clients as
// Go interfaces, per spec.md §9's "Duck-typed service clients" redesign
// flag, and testutils/inject provides field-overridable fakes for tests.
package service

import (
	"context"

	"go.viam.com/xstem/spatialmath"
)

// TerminalStatus is the set of follower-state codes that end a track
// execution, per spec.md §6.
type TerminalStatus int

const (
	StatusRunning TerminalStatus = iota
	StatusComplete
	StatusFailed
	StatusAborted
	StatusCancelled
)

// IsTerminal reports whether s ends track execution.
func (s TerminalStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusAborted || s == StatusCancelled
}

// FollowerState is a single message from the follower's state stream.
type FollowerState struct {
	Status TerminalStatus
	Pose   spatialmath.Pose
}

// Track is the wire representation of a track segment: an ordered list
// of poses to drive through, handed opaquely to the FollowerService.
type Track struct {
	Waypoints []spatialmath.Pose
}

// FollowerService is the navigation/track-follower service.
type FollowerService interface {
	SetTrack(ctx context.Context, track Track) error
	Start(ctx context.Context) error
	Cancel(ctx context.Context) error
	SubscribeState(ctx context.Context) (<-chan FollowerState, error)
}

// FilterState is a single state reading from the localization filter.
type FilterState struct {
	Pose      spatialmath.Pose
	Converged bool
}

// FilterService is the localization/state-estimator service.
type FilterService interface {
	GetState(ctx context.Context) (FilterState, error)
	SubscribeState(ctx context.Context) (<-chan FilterState, error)
}

// Twist is a linear/angular velocity command.
type Twist struct {
	LinearMPerSec    float64
	AngularRadPerSec float64
}

// CanBus is the shared, serialized CAN command channel. Only one
// command is in flight at a time through a single client, per spec.md §5.
type CanBus interface {
	SendTwist(ctx context.Context, t Twist) error
	ControlTool(ctx context.Context, signal string, value float64) error
	SendRaw(ctx context.Context, arbitrationID uint32, payload []byte) error
}

// Camera is a still/streaming frame source consumed by the vision gate.
type Camera interface {
	Name() string
}

// Clients bundles the external service handles a ModuleContext carries,
// per spec.md §3's ModuleContext definition.
type Clients struct {
	Filter   FilterService
	Follower FollowerService
	CanBus   CanBus
	Cameras  map[string]Camera
}
