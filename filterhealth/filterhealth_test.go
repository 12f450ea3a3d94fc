package filterhealth

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/service"
	"go.viam.com/xstem/testutils/inject"
)

func TestCheckConvergenceSucceeds(t *testing.T) {
	ch := make(chan service.FilterState, 1)
	ch <- service.FilterState{Converged: true}

	filter := &inject.FilterService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FilterState, error) {
			return ch, nil
		},
	}
	can := &inject.CanBus{}
	mon := New(filter, can, clock.NewMock(), logging.NewTestLogger())

	ok, err := mon.CheckConvergence(context.Background(), time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestCheckConvergenceTimesOut(t *testing.T) {
	ch := make(chan service.FilterState)
	filter := &inject.FilterService{
		SubscribeStateFunc: func(ctx context.Context) (<-chan service.FilterState, error) {
			return ch, nil
		},
	}
	can := &inject.CanBus{}
	mclock := clock.NewMock()
	mon := New(filter, can, mclock, logging.NewTestLogger())

	done := make(chan struct{})
	var ok bool
	go func() {
		ok, _ = mon.CheckConvergence(context.Background(), time.Second)
		close(done)
	}()
	mclock.Add(2 * time.Second)
	<-done
	test.That(t, ok, test.ShouldBeFalse)
}

func TestImuWiggleSendsZeroVelocityOnSuccess(t *testing.T) {
	attempt := 0
	filter := &inject.FilterService{
		GetStateFunc: func(ctx context.Context) (service.FilterState, error) {
			attempt++
			return service.FilterState{Converged: attempt >= 2}, nil
		},
	}
	can := &inject.CanBus{}
	mclock := clock.NewMock()
	mon := New(filter, can, mclock, logging.NewTestLogger())

	done := make(chan struct{})
	var ok bool
	go func() {
		ok, _ = mon.ImuWiggle(context.Background(), 50*time.Millisecond, 1.0, 4)
		close(done)
	}()
	for i := 0; i < 20; i++ {
		mclock.Add(50 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	<-done

	test.That(t, ok, test.ShouldBeTrue)
	last := can.TwistsSent[len(can.TwistsSent)-1]
	test.That(t, last.AngularRadPerSec, test.ShouldAlmostEqual, 0)
}

func TestImuWiggleCyclesFourPhasesWithinAttempt(t *testing.T) {
	filter := &inject.FilterService{
		GetStateFunc: func(ctx context.Context) (service.FilterState, error) {
			return service.FilterState{Converged: false}, nil
		},
	}
	can := &inject.CanBus{}
	mclock := clock.NewMock()
	mon := New(filter, can, mclock, logging.NewTestLogger())

	done := make(chan struct{})
	go func() {
		_, _ = mon.ImuWiggle(context.Background(), 50*time.Millisecond, 1.0, 1)
		close(done)
	}()
	for i := 0; i < 20; i++ {
		mclock.Add(50 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	<-done

	// A single attempt must drive the four quarter-duration phases
	// left, right, left, right, in that order (spec.md §4.4).
	test.That(t, len(can.TwistsSent), test.ShouldBeGreaterThanOrEqualTo, 4)
	test.That(t, can.TwistsSent[0].AngularRadPerSec, test.ShouldBeGreaterThan, 0)
	test.That(t, can.TwistsSent[1].AngularRadPerSec, test.ShouldBeLessThan, 0)
	test.That(t, can.TwistsSent[2].AngularRadPerSec, test.ShouldBeGreaterThan, 0)
	test.That(t, can.TwistsSent[3].AngularRadPerSec, test.ShouldBeLessThan, 0)
}
