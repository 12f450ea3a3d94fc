package navexec

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/motionplan"
	"go.viam.com/xstem/service"
	"go.viam.com/xstem/spatialmath"
	"go.viam.com/xstem/testutils/inject"

	"github.com/golang/geo/r3"
)

func testSegment() motionplan.TrackSegment {
	return motionplan.TrackSegment{
		Kind: motionplan.KindStraight,
		Waypoints: []spatialmath.Pose{
			spatialmath.NewTranslation(r3.Vector{X: 0, Y: 0}, "world", "robot"),
			spatialmath.NewTranslation(r3.Vector{X: 1, Y: 0}, "world", "robot"),
		},
	}
}

func TestExecuteReturnsCompleteOnTerminalStatus(t *testing.T) {
	states := make(chan service.FollowerState, 1)
	follower := &inject.FollowerService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FollowerState, error) {
			return states, nil
		},
		StartFunc: func(ctx context.Context) error {
			states <- service.FollowerState{Status: service.StatusComplete}
			return nil
		},
	}
	exec := New(follower, logging.NewTestLogger())

	outcome, err := exec.Execute(context.Background(), testSegment(), time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome, test.ShouldEqual, OutcomeComplete)
}

func TestExecuteTimesOutWhenNoTerminalStatusArrives(t *testing.T) {
	states := make(chan service.FollowerState)
	cancelled := make(chan struct{})
	follower := &inject.FollowerService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FollowerState, error) {
			return states, nil
		},
		CancelFunc: func(ctx context.Context) error {
			close(cancelled)
			return nil
		},
	}
	exec := New(follower, logging.NewTestLogger())

	outcome, err := exec.Execute(context.Background(), testSegment(), 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, outcome, test.ShouldEqual, OutcomeTimeout)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for follower Cancel after Execute timeout")
	}
}

func TestExecuteRejectsConcurrentCalls(t *testing.T) {
	states := make(chan service.FollowerState)
	started := make(chan struct{})
	follower := &inject.FollowerService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FollowerState, error) {
			close(started)
			return states, nil
		},
	}
	exec := New(follower, logging.NewTestLogger())

	go func() {
		_, _ = exec.Execute(context.Background(), testSegment(), 200*time.Millisecond)
	}()
	<-started

	_, err := exec.Execute(context.Background(), testSegment(), time.Second)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCancelInvokesFollowerCancel(t *testing.T) {
	states := make(chan service.FollowerState)
	cancelled := make(chan struct{})
	follower := &inject.FollowerService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FollowerState, error) {
			return states, nil
		},
		CancelFunc: func(ctx context.Context) error {
			close(cancelled)
			return nil
		},
	}
	exec := New(follower, logging.NewTestLogger())

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = exec.Execute(context.Background(), testSegment(), time.Second)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	err := exec.Cancel(context.Background())
	test.That(t, err, test.ShouldBeNil)
	<-cancelled
}
