// Package mission implements the hierarchical state machine that
// drives one hole at a time, and the orchestrator that wires the rest
// of the mission core around it (spec.md §4.9, §4.10).
package mission

import (
	"fmt"
	"sync"
	"time"

	"go.viam.com/xstem/logging"
)

// NavState is one state of the mission's hierarchical state machine
// (spec.md §4.9).
type NavState int

const (
	StateIdle NavState = iota
	StateInitializing
	StatePlanning
	StatePlottingPath
	StateFollowingPath
	StateStopping
	StateDetecting
	StateConverting
	StateModulePhase
	StateUpdatingPattern
	StateEchelonTurn
	StateReturning
	StateSegmentTimeout
	StateRecovering
	StateComplete
	StateFailed
	StateEmergencyStop
)

func (s NavState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StatePlanning:
		return "PLANNING"
	case StatePlottingPath:
		return "PLOTTING_PATH"
	case StateFollowingPath:
		return "FOLLOWING_PATH"
	case StateStopping:
		return "STOPPING"
	case StateDetecting:
		return "DETECTING"
	case StateConverting:
		return "CONVERTING"
	case StateModulePhase:
		return "MODULE_PHASE"
	case StateUpdatingPattern:
		return "UPDATING_PATTERN"
	case StateEchelonTurn:
		return "ECHELON_TURN"
	case StateReturning:
		return "RETURNING"
	case StateSegmentTimeout:
		return "SEGMENT_TIMEOUT"
	case StateRecovering:
		return "RECOVERING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	case StateEmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s ends the mission.
func (s NavState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed || s == StateEmergencyStop
}

// Transition records one (from, to) move through the state machine.
type Transition struct {
	From  NavState
	To    NavState
	Event string
	At    time.Time
}

// InvalidTransitionError reports a transition method called while the
// machine is in a state that does not permit it.
type InvalidTransitionError struct {
	Event   string
	Current NavState
	Allowed []NavState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("mission: event %q invalid from state %s (allowed: %v)", e.Event, e.Current, e.Allowed)
}

// StateMachine is the explicit hierarchical FSM driving one hole at a
// time (spec.md §4.9). Every method takes m.mu, so calls from different
// goroutines do not race; the orchestrator drives the per-hole
// transitions from one goroutine, and any transition attempted after a
// concurrent EmergencyStop fails with InvalidTransitionError.
type StateMachine struct {
	mu      sync.Mutex
	current NavState
	logger  logging.Logger
	history []Transition
}

// NewStateMachine builds a StateMachine starting in IDLE.
func NewStateMachine(logger logging.Logger) *StateMachine {
	return &StateMachine{current: StateIdle, logger: logger}
}

// Current returns the machine's current state.
func (m *StateMachine) Current() NavState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of every transition recorded so far.
func (m *StateMachine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// move performs the transition if m.current is one of allowed,
// no-ops if m.current already equals to, and otherwise returns
// InvalidTransitionError. Caller must hold m.mu.
func (m *StateMachine) move(event string, allowed []NavState, to NavState) error {
	if m.current == to {
		return nil
	}
	ok := false
	for _, a := range allowed {
		if m.current == a {
			ok = true
			break
		}
	}
	if !ok {
		return &InvalidTransitionError{Event: event, Current: m.current, Allowed: allowed}
	}
	from := m.current
	m.current = to
	m.history = append(m.history, Transition{From: from, To: to, Event: event, At: time.Now()})
	m.logger.Infof("mission: %s -> %s (%s)", from, to, event)
	return nil
}

// Start begins mission setup: IDLE -> INITIALIZING.
func (m *StateMachine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("start", []NavState{StateIdle}, StateInitializing)
}

// Ready moves past setup into the per-hole loop: INITIALIZING -> PLANNING.
func (m *StateMachine) Ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("ready", []NavState{StateInitializing}, StatePlanning)
}

// GoalSet records that a navigation goal has been set for the current
// hole: PLANNING -> PLOTTING_PATH.
func (m *StateMachine) GoalSet() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("goal_set", []NavState{StatePlanning}, StatePlottingPath)
}

// PathPlotted records that the planner has produced a track:
// PLOTTING_PATH -> FOLLOWING_PATH.
func (m *StateMachine) PathPlotted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("path_plotted", []NavState{StatePlottingPath}, StateFollowingPath)
}

// ApproachReached records that the approach segment completed:
// FOLLOWING_PATH -> STOPPING.
func (m *StateMachine) ApproachReached() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("approach_reached", []NavState{StateFollowingPath}, StateStopping)
}

// Stopped records that the robot has come to rest for detection:
// STOPPING -> DETECTING.
func (m *StateMachine) Stopped() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("stopped", []NavState{StateStopping}, StateDetecting)
}

// HoleDetected records a successful vision detection:
// DETECTING -> CONVERTING.
func (m *StateMachine) HoleDetected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("hole_detected", []NavState{StateDetecting}, StateConverting)
}

// Converted records that the detected hole pose has been converted
// into a refined approach goal: CONVERTING -> PLOTTING_PATH.
func (m *StateMachine) Converted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("converted", []NavState{StateConverting}, StatePlottingPath)
}

// HoleNotFound records that vision found nothing, falling back to the
// planned pose: DETECTING -> PLOTTING_PATH.
func (m *StateMachine) HoleNotFound() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("hole_not_found", []NavState{StateDetecting}, StatePlottingPath)
}

// FinalTrackComplete records that the final approach to the hole
// finished: FOLLOWING_PATH -> MODULE_PHASE.
func (m *StateMachine) FinalTrackComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("final_track_complete", []NavState{StateFollowingPath}, StateModulePhase)
}

// ModuleDone records that the module finished acting on the hole:
// MODULE_PHASE -> UPDATING_PATTERN.
func (m *StateMachine) ModuleDone() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("module_done", []NavState{StateModulePhase}, StateUpdatingPattern)
}

// PatternUpdated branches on the pattern's post-hole outcome:
// UPDATING_PATTERN -> RETURNING (pattern complete), ECHELON_TURN
// (row end), or PLANNING (otherwise). A complete pattern may also be
// reported from PLANNING (PLANNING -> RETURNING), which is where the
// machine rests when the last hole was failed, skipped, or followed by
// a row-end turn.
func (m *StateMachine) PatternUpdated(isComplete, isEchelonEnd bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case isComplete:
		return m.move("pattern_updated_complete", []NavState{StateUpdatingPattern, StatePlanning}, StateReturning)
	case isEchelonEnd:
		return m.move("pattern_updated_echelon_end", []NavState{StateUpdatingPattern}, StateEchelonTurn)
	default:
		return m.move("pattern_updated", []NavState{StateUpdatingPattern}, StatePlanning)
	}
}

// EchelonTurnComplete records that the row-end U-turn finished:
// ECHELON_TURN -> PLANNING.
func (m *StateMachine) EchelonTurnComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("echelon_turn_complete", []NavState{StateEchelonTurn}, StatePlanning)
}

// Returned records that the return-to-base leg finished:
// RETURNING -> COMPLETE.
func (m *StateMachine) Returned() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("returned", []NavState{StateReturning}, StateComplete)
}

// nonTerminalStates lists every state from which an executor timeout or
// emergency stop may be observed.
func nonTerminalStates() []NavState {
	return []NavState{
		StateIdle, StateInitializing, StatePlanning, StatePlottingPath, StateFollowingPath,
		StateStopping, StateDetecting, StateConverting, StateModulePhase, StateUpdatingPattern,
		StateEchelonTurn, StateReturning, StateSegmentTimeout, StateRecovering,
	}
}

// ExecutorTimeout records a navigation executor timeout from any
// non-terminal state: * -> SEGMENT_TIMEOUT.
func (m *StateMachine) ExecutorTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("executor_timeout", nonTerminalStates(), StateSegmentTimeout)
}

// BeginRecovery records that recovery policy evaluation has begun:
// SEGMENT_TIMEOUT -> RECOVERING.
func (m *StateMachine) BeginRecovery() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("begin_recovery", []NavState{StateSegmentTimeout}, StateRecovering)
}

// RecoverRetry applies the retry recovery policy: RECOVERING -> PLANNING.
func (m *StateMachine) RecoverRetry() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("recover_retry", []NavState{StateRecovering}, StatePlanning)
}

// RecoverSkip applies the skip recovery policy — give up on the current
// hole and move on to the next one rather than retrying it further or
// aborting the mission: RECOVERING -> PLANNING.
func (m *StateMachine) RecoverSkip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("recover_skip", []NavState{StateRecovering}, StatePlanning)
}

// RecoverAbort applies the abort recovery policy: RECOVERING -> FAILED.
func (m *StateMachine) RecoverAbort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("recover_abort", []NavState{StateRecovering}, StateFailed)
}

// EmergencyStop records an external emergency-stop signal from any
// non-terminal state: * -> EMERGENCY_STOP.
func (m *StateMachine) EmergencyStop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move("emergency_stop", nonTerminalStates(), StateEmergencyStop)
}
