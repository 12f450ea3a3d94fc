// Package filterhealth watches the localization filter's convergence
// state and, when it stalls, drives a bounded IMU-wiggle recovery
// maneuver (spec.md §4.4).
package filterhealth

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/service"
)

// wiggleHz is the command rate of the IMU-wiggle maneuver (spec.md §4.4).
const wiggleHz = 20

// Monitor checks and recovers localization filter convergence.
type Monitor struct {
	filter service.FilterService
	can    service.CanBus
	clock  clock.Clock
	logger logging.Logger
}

// New builds a Monitor. A nil clk defaults to the real wall clock.
func New(filter service.FilterService, can service.CanBus, clk clock.Clock, logger logging.Logger) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{filter: filter, can: can, clock: clk, logger: logger}
}

// CheckConvergence polls the filter's state stream until it reports
// Converged or timeout elapses, per spec.md §4.4.
func (m *Monitor) CheckConvergence(ctx context.Context, timeout time.Duration) (bool, error) {
	states, err := m.filter.SubscribeState(ctx)
	if err != nil {
		return false, errors.Wrap(err, "filterhealth: subscribing to filter state")
	}

	timer := m.clock.Timer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		case st, ok := <-states:
			if !ok {
				return false, errors.New("filterhealth: filter state stream closed")
			}
			if st.Converged {
				return true, nil
			}
		}
	}
}

// wiggleSigns is the within-attempt direction sequence — left, right,
// left, right, each held for a quarter of the attempt's duration — per
// spec.md §4.4 and the ground truth at
// _examples/original_source/hardware/filter_utils.py:141-160.
var wiggleSigns = [4]float64{1, -1, 1, -1}

// ImuWiggle drives, per attempt, the four-phase left/right/left/right
// sequence at 20Hz, checking convergence between attempts, up to
// maxAttempts times. A zero-velocity command is sent on every exit
// path, successful or not, per spec.md §4.4's "no drift on bail-out"
// invariant.
func (m *Monitor) ImuWiggle(ctx context.Context, duration time.Duration, angularVelocity float64, maxAttempts int) (bool, error) {
	defer m.stopSafely()

	period := time.Second / wiggleHz
	ticksPerPhase := int(duration / 4 / period)
	if ticksPerPhase < 1 {
		ticksPerPhase = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		for _, sign := range wiggleSigns {
			ticker := m.clock.Ticker(period)
			for i := 0; i < ticksPerPhase; i++ {
				select {
				case <-ctx.Done():
					ticker.Stop()
					return false, ctx.Err()
				case <-ticker.C:
					if err := m.can.SendTwist(ctx, service.Twist{AngularRadPerSec: sign * angularVelocity}); err != nil {
						ticker.Stop()
						return false, errors.Wrap(err, "filterhealth: sending wiggle twist")
					}
				}
			}
			ticker.Stop()
		}

		converged, err := m.filter.GetState(ctx)
		if err != nil {
			return false, errors.Wrap(err, "filterhealth: checking convergence after wiggle attempt")
		}
		if converged.Converged {
			m.logger.Infof("filter converged after %d wiggle attempt(s)", attempt+1)
			return true, nil
		}
	}

	m.logger.Warnf("filter did not converge after %d wiggle attempts", maxAttempts)
	return false, nil
}

func (m *Monitor) stopSafely() {
	if err := m.can.SendTwist(context.Background(), service.Twist{}); err != nil {
		m.logger.Errorf("filterhealth: failed to zero velocity after wiggle: %v", err)
	}
}
