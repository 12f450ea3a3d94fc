package mission

import (
	"testing"

	"go.viam.com/test"
	"go.viam.com/xstem/logging"
)

func happyPathToDetecting(t *testing.T, m *StateMachine) {
	t.Helper()
	test.That(t, m.Start(), test.ShouldBeNil)
	test.That(t, m.Ready(), test.ShouldBeNil)
	test.That(t, m.GoalSet(), test.ShouldBeNil)
	test.That(t, m.PathPlotted(), test.ShouldBeNil)
	test.That(t, m.ApproachReached(), test.ShouldBeNil)
	test.That(t, m.Stopped(), test.ShouldBeNil)
}

func TestHappyPathSingleHole(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	happyPathToDetecting(t, m)
	test.That(t, m.Current(), test.ShouldEqual, StateDetecting)

	test.That(t, m.HoleNotFound(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StatePlottingPath)
	test.That(t, m.PathPlotted(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateFollowingPath)

	// The second plotted path is the final segment to the hole; its
	// completion moves straight from FOLLOWING_PATH to module phase.
	test.That(t, m.FinalTrackComplete(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateModulePhase)

	test.That(t, m.ModuleDone(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateUpdatingPattern)

	test.That(t, m.PatternUpdated(true, false), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateReturning)
	test.That(t, m.Returned(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateComplete)
}

func TestHoleDetectedPath(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	happyPathToDetecting(t, m)
	test.That(t, m.HoleDetected(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateConverting)
	test.That(t, m.Converted(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StatePlottingPath)
}

func TestPatternUpdatedEchelonEndGoesThroughTurn(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	happyPathToDetecting(t, m)
	test.That(t, m.HoleNotFound(), test.ShouldBeNil)
	test.That(t, m.PathPlotted(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateFollowingPath)
	test.That(t, m.FinalTrackComplete(), test.ShouldBeNil)
	test.That(t, m.ModuleDone(), test.ShouldBeNil)

	test.That(t, m.PatternUpdated(false, true), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateEchelonTurn)
	test.That(t, m.EchelonTurnComplete(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StatePlanning)
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	err := m.GoalSet()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateIdle)
}

func TestReenteringSameStateIsNoop(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	test.That(t, m.Start(), test.ShouldBeNil)
	historyLenBefore := len(m.History())

	// Start() targets INITIALIZING, where the machine already is, so a
	// second call is a same-state re-entry: no error, no new history.
	err := m.Start()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(m.History()), test.ShouldEqual, historyLenBefore)
}

func TestTimeoutAndRecoveryRetry(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	happyPathToDetecting(t, m)

	test.That(t, m.ExecutorTimeout(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateSegmentTimeout)
	test.That(t, m.BeginRecovery(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateRecovering)
	test.That(t, m.RecoverRetry(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StatePlanning)
}

func TestTimeoutAndRecoveryAbort(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	happyPathToDetecting(t, m)

	test.That(t, m.ExecutorTimeout(), test.ShouldBeNil)
	test.That(t, m.BeginRecovery(), test.ShouldBeNil)
	test.That(t, m.RecoverAbort(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateFailed)
}

func TestEmergencyStopFromAnyState(t *testing.T) {
	m := NewStateMachine(logging.NewTestLogger())
	test.That(t, m.Start(), test.ShouldBeNil)
	test.That(t, m.EmergencyStop(), test.ShouldBeNil)
	test.That(t, m.Current(), test.ShouldEqual, StateEmergencyStop)
}
