// Package inject provides field-overridable fakes for the mission
// core's external-service interfaces, in the teacher's
// testutils/inject idiom (go.viam.com/rdk/testutils/inject, exercised in
// base/base_test.go via inject.Base{WidthMillisFunc: func(...) {...}}):
// each fake holds one func field per interface method, defaulting to a
// harmless zero-value implementation that tests overwrite as needed.
package inject

import (
	"context"

	"go.viam.com/xstem/service"
)

// FilterService is an injectable service.FilterService.
type FilterService struct {
	GetStateFunc       func(ctx context.Context) (service.FilterState, error)
	SubscribeStateFunc func(ctx context.Context) (<-chan service.FilterState, error)
}

func (f *FilterService) GetState(ctx context.Context) (service.FilterState, error) {
	if f.GetStateFunc == nil {
		return service.FilterState{}, nil
	}
	return f.GetStateFunc(ctx)
}

func (f *FilterService) SubscribeState(ctx context.Context) (<-chan service.FilterState, error) {
	if f.SubscribeStateFunc == nil {
		ch := make(chan service.FilterState)
		return ch, nil
	}
	return f.SubscribeStateFunc(ctx)
}

// FollowerService is an injectable service.FollowerService.
type FollowerService struct {
	SetTrackFunc       func(ctx context.Context, track service.Track) error
	StartFunc          func(ctx context.Context) error
	CancelFunc         func(ctx context.Context) error
	SubscribeStateFunc func(ctx context.Context) (<-chan service.FollowerState, error)
}

func (f *FollowerService) SetTrack(ctx context.Context, track service.Track) error {
	if f.SetTrackFunc == nil {
		return nil
	}
	return f.SetTrackFunc(ctx, track)
}

func (f *FollowerService) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f *FollowerService) Cancel(ctx context.Context) error {
	if f.CancelFunc == nil {
		return nil
	}
	return f.CancelFunc(ctx)
}

func (f *FollowerService) SubscribeState(ctx context.Context) (<-chan service.FollowerState, error) {
	if f.SubscribeStateFunc == nil {
		ch := make(chan service.FollowerState)
		return ch, nil
	}
	return f.SubscribeStateFunc(ctx)
}

// CanBus is an injectable service.CanBus.
type CanBus struct {
	SendTwistFunc   func(ctx context.Context, t service.Twist) error
	ControlToolFunc func(ctx context.Context, signal string, value float64) error
	SendRawFunc     func(ctx context.Context, arbitrationID uint32, payload []byte) error

	TwistsSent []service.Twist
}

func (c *CanBus) SendTwist(ctx context.Context, t service.Twist) error {
	c.TwistsSent = append(c.TwistsSent, t)
	if c.SendTwistFunc == nil {
		return nil
	}
	return c.SendTwistFunc(ctx, t)
}

func (c *CanBus) ControlTool(ctx context.Context, signal string, value float64) error {
	if c.ControlToolFunc == nil {
		return nil
	}
	return c.ControlToolFunc(ctx, signal, value)
}

func (c *CanBus) SendRaw(ctx context.Context, arbitrationID uint32, payload []byte) error {
	if c.SendRawFunc == nil {
		return nil
	}
	return c.SendRawFunc(ctx, arbitrationID, payload)
}

// Camera is an injectable service.Camera.
type Camera struct {
	NameFunc func() string
}

func (c *Camera) Name() string {
	if c.NameFunc == nil {
		return ""
	}
	return c.NameFunc()
}
