// Package navexec drives a single track segment through the follower
// service to completion, cancellation, or timeout (spec.md §4.5).
package navexec

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/motionplan"
	"go.viam.com/xstem/service"
)

// Outcome is the terminal result of a single Execute call.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeFailed
	OutcomeAborted
	OutcomeCancelled
	OutcomeTimeout
)

// Executor runs one track segment at a time against a FollowerService,
// translating its async state stream into a synchronous call, in the
// manner of the teacher's operation.SingleOperationManager serializing
// access to a shared resource.
type Executor struct {
	follower service.FollowerService
	logger   logging.Logger

	mu        sync.Mutex
	cancelBg  context.CancelFunc
	executing bool
}

// New builds an Executor bound to a follower service.
func New(follower service.FollowerService, logger logging.Logger) *Executor {
	return &Executor{follower: follower, logger: logger}
}

// Execute sets and starts the given segment, then blocks until the
// follower reports a terminal status or timeout elapses, whichever
// comes first. Only one Execute may be in flight at a time: a second,
// concurrent call returns an error at once. Cancel may be called while
// Execute is in flight.
func (e *Executor) Execute(ctx context.Context, segment motionplan.TrackSegment, timeout time.Duration) (Outcome, error) {
	e.mu.Lock()
	if e.executing {
		e.mu.Unlock()
		return OutcomeFailed, errors.New("navexec: Execute already in progress")
	}
	e.executing = true
	bgCtx, cancel := context.WithCancel(ctx)
	e.cancelBg = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.executing = false
		e.cancelBg = nil
		e.mu.Unlock()
		cancel()
	}()

	track := service.Track{Waypoints: segment.Waypoints}
	if err := e.follower.SetTrack(ctx, track); err != nil {
		return OutcomeFailed, errors.Wrap(err, "navexec: SetTrack")
	}

	states, err := e.follower.SubscribeState(bgCtx)
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "navexec: SubscribeState")
	}

	terminal := make(chan Outcome, 1)
	utils.ManagedGo(func() {
		e.monitor(bgCtx, states, terminal)
	}, func() {})

	if err := e.follower.Start(ctx); err != nil {
		return OutcomeFailed, errors.Wrap(err, "navexec: Start")
	}

	// errRaceWon cancels groupCtx as soon as either branch fires, so the
	// loser exits immediately instead of blocking for the full timeout.
	errRaceWon := errors.New("navexec: race won")

	group, groupCtx := errgroup.WithContext(bgCtx)
	outcomeCh := make(chan Outcome, 1)
	group.Go(func() error {
		select {
		case out := <-terminal:
			outcomeCh <- out
			return errRaceWon
		case <-groupCtx.Done():
			return nil
		}
	})
	group.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			outcomeCh <- OutcomeTimeout
			return errRaceWon
		case <-groupCtx.Done():
			return nil
		}
	})

	_ = group.Wait()
	select {
	case out := <-outcomeCh:
		if out == OutcomeTimeout {
			e.logger.Warnf("navexec: segment execution timed out after %s", timeout)
			if err := e.follower.Cancel(ctx); err != nil {
				e.logger.Warnf("navexec: cancel after timeout: %v", err)
			}
		}
		return out, nil
	default:
		return OutcomeFailed, ctx.Err()
	}
}

func (e *Executor) monitor(ctx context.Context, states <-chan service.FollowerState, terminal chan<- Outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if !st.Status.IsTerminal() {
				continue
			}
			terminal <- statusToOutcome(st.Status)
			return
		}
	}
}

func statusToOutcome(status service.TerminalStatus) Outcome {
	switch status {
	case service.StatusComplete:
		return OutcomeComplete
	case service.StatusAborted:
		return OutcomeAborted
	case service.StatusCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// Cancel stops the in-flight Execute call, if any. It is safe to call
// concurrently with Execute.
func (e *Executor) Cancel(ctx context.Context) error {
	e.mu.Lock()
	executing := e.executing
	e.mu.Unlock()
	if !executing {
		return nil
	}
	return e.follower.Cancel(ctx)
}
