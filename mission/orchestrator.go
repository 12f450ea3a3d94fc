package mission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"go.viam.com/xstem/filterhealth"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/module"
	"go.viam.com/xstem/motionplan"
	"go.viam.com/xstem/navexec"
	"go.viam.com/xstem/pattern"
	"go.viam.com/xstem/service"
	"go.viam.com/xstem/vision"
)

// shutdownTimeout bounds module shutdown and the final snapshot save so
// a hung Shutdown call can never block process exit indefinitely.
const shutdownTimeout = 10 * time.Second

// Config bundles the orchestrator's tuning knobs, a subset of spec.md
// §6's navigation/filter tuning block relevant to the per-hole loop.
type Config struct {
	ExecutionTimeout  time.Duration
	ApproachOffsetM   float64
	ConvergeTimeout   time.Duration
	WiggleDuration    time.Duration
	WiggleAngularVel  float64
	WiggleMaxAttempts int
	MaxRetries        int
	// SegmentTimeoutFallsBack controls the recovery policy once a hole
	// exceeds MaxRetries: true continues the mission with the next hole
	// (the hole is marked failed); false aborts the whole mission,
	// transitioning the state machine to FAILED (spec.md §4.9's
	// RECOVERING -> PLANNING (skip) | FAILED (abort) branch).
	SegmentTimeoutFallsBack bool
	SnapshotPath            string
	AutosaveInterval        time.Duration
}

// Orchestrator wires the pose kernel, planner, executor, filter
// monitor, vision gate, module, and pattern store into the per-hole
// main loop described by spec.md §4.10.
type Orchestrator struct {
	cfg     Config
	logger  logging.Logger
	sm      *StateMachine
	planner *motionplan.Planner
	exec    *navexec.Executor
	filter  *filterhealth.Monitor
	vis     vision.Gate
	mod     module.Module
	pat     *pattern.BlastPattern
	clients service.Clients

	shutdown atomic.Bool
	scheduler gocron.Scheduler

	mu sync.Mutex
}

// New builds an Orchestrator from its already-constructed collaborators.
func New(
	cfg Config,
	logger logging.Logger,
	planner *motionplan.Planner,
	exec *navexec.Executor,
	filter *filterhealth.Monitor,
	vis vision.Gate,
	mod module.Module,
	pat *pattern.BlastPattern,
	clients service.Clients,
) *Orchestrator {
	if vis == nil {
		vis = vision.Noop{}
	}
	if mod == nil {
		mod = module.Null{}
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		sm:      NewStateMachine(logger),
		planner: planner,
		exec:    exec,
		filter:  filter,
		vis:     vis,
		mod:     mod,
		pat:     pat,
		clients: clients,
	}
}

// RequestShutdown sets the shutdown flag; the main loop breaks at the
// next state boundary and any in-flight track is cancelled.
func (o *Orchestrator) RequestShutdown(ctx context.Context) {
	o.shutdown.Store(true)
	if err := o.exec.Cancel(ctx); err != nil {
		o.logger.Warnf("orchestrator: cancel on shutdown: %v", err)
	}
}

func (o *Orchestrator) shuttingDown() bool {
	return o.shutdown.Load()
}

// EmergencyStop drives the state machine directly to EMERGENCY_STOP from
// any non-terminal state, cancels any in-flight track, and sets the
// shutdown flag so the main loop does not attempt another hole. Safe to
// call from a goroutine concurrent with Run, matching the operator
// surface's emergency-stop event (spec.md §6).
func (o *Orchestrator) EmergencyStop(ctx context.Context) error {
	o.shutdown.Store(true)
	if err := o.exec.Cancel(ctx); err != nil {
		o.logger.Warnf("orchestrator: cancel on emergency stop: %v", err)
	}
	return o.sm.EmergencyStop()
}

// moduleContext builds a module.Context for the current hole.
func (o *Orchestrator) moduleContext(target service.FollowerState) module.Context {
	return module.Context{
		Clients: o.clients,
		Target:  target,
		Logger:  o.logger,
	}
}

// Setup performs the one-time mission setup: module initialize,
// verify-ready, calibrate, and filter convergence (invoking wiggle if
// needed), then moves the state machine from IDLE to PLANNING.
func (o *Orchestrator) Setup(ctx context.Context) error {
	if err := o.sm.Start(); err != nil {
		return errors.Wrap(err, "orchestrator: starting setup")
	}

	mctx := o.moduleContext(service.FollowerState{})
	if err := o.mod.Initialize(ctx, mctx); err != nil {
		return errors.Wrap(err, "orchestrator: module initialize")
	}
	ready, err := o.mod.VerifyReady(ctx, mctx)
	if err != nil {
		return errors.Wrap(err, "orchestrator: module verify-ready")
	}
	if !ready {
		return errors.New("orchestrator: module reported not ready, aborting setup")
	}
	if err := o.mod.Calibrate(ctx, mctx); err != nil {
		return errors.Wrap(err, "orchestrator: module calibrate")
	}

	if err := o.ensureConverged(ctx); err != nil {
		return errors.Wrap(err, "orchestrator: ensuring filter convergence")
	}

	if o.cfg.AutosaveInterval > 0 && o.cfg.SnapshotPath != "" {
		if err := o.startAutosave(); err != nil {
			o.logger.Warnf("orchestrator: autosave scheduling failed, continuing without it: %v", err)
		}
	}

	return o.sm.Ready()
}

func (o *Orchestrator) ensureConverged(ctx context.Context) error {
	ok, err := o.filter.CheckConvergence(ctx, o.cfg.ConvergeTimeout)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	o.logger.Warnf("orchestrator: filter not converged, attempting imu wiggle recovery")
	ok, err = o.filter.ImuWiggle(ctx, o.cfg.WiggleDuration, o.cfg.WiggleAngularVel, o.cfg.WiggleMaxAttempts)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("orchestrator: filter failed to converge after wiggle recovery")
	}
	return nil
}

func (o *Orchestrator) startAutosave() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "building scheduler")
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(o.cfg.AutosaveInterval),
		gocron.NewTask(func() {
			if err := o.pat.Save(o.cfg.SnapshotPath); err != nil {
				o.logger.Errorf("orchestrator: autosave failed: %v", err)
			}
		}),
	)
	if err != nil {
		return errors.Wrap(err, "scheduling autosave job")
	}
	o.scheduler = scheduler
	scheduler.Start()
	return nil
}

// Run executes the main loop: repeatedly drive one hole cycle until the
// pattern is complete, a shutdown is requested, or the state machine
// reaches a terminal state. It returns the state machine's final state.
//
// Module shutdown and the final snapshot save happen on every exit path
// — normal completion, a shutdown request, or an error return — per
// spec.md §4.7 op 5 ("shutdown once, on normal or error exit; must not
// fail") and §7's Fatal-error handling ("module shutdown still runs").
func (o *Orchestrator) Run(ctx context.Context) (NavState, error) {
	defer o.stopAutosave()
	defer o.finalizeShutdown()

	for {
		if o.shuttingDown() {
			o.logger.Infof("orchestrator: shutdown requested, stopping main loop")
			break
		}
		if o.sm.Current().IsTerminal() {
			break
		}

		hole, ok := o.pat.NextPending()
		if !ok {
			if !o.pat.IsComplete() {
				// Holes remain IN_PROGRESS from a prior run that was never
				// resumed through Load; treat as done for this run.
				o.logger.Warnf("orchestrator: no pending holes but pattern not complete")
			}
			if err := o.sm.PatternUpdated(true, false); err != nil {
				return o.sm.Current(), err
			}
			if err := o.sm.Returned(); err != nil {
				return o.sm.Current(), err
			}
			break
		}

		if err := o.runHoleCycle(ctx, hole); err != nil {
			return o.sm.Current(), err
		}
	}

	return o.sm.Current(), nil
}

// finalizeShutdown runs module shutdown and the final snapshot save. It
// uses its own background context with a bounded timeout rather than
// Run's ctx, since this must still happen when ctx is already cancelled
// (shutdown request, emergency stop) or when Run is exiting on error.
func (o *Orchestrator) finalizeShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	mctx := o.moduleContext(service.FollowerState{})
	if err := o.mod.Shutdown(ctx, mctx); err != nil {
		o.logger.Errorf("orchestrator: module shutdown: %v", err)
	}
	if o.cfg.SnapshotPath != "" {
		if err := o.pat.Save(o.cfg.SnapshotPath); err != nil {
			o.logger.Errorf("orchestrator: final save failed: %v", err)
		}
	}
}

func (o *Orchestrator) stopAutosave() {
	if o.scheduler != nil {
		_ = o.scheduler.Shutdown()
	}
}

// retryHole is a sentinel returned by attemptHole's failure path to
// tell runHoleCycle to re-attempt the same hole from the top, rather
// than letting the outer Run loop advance to the next pending hole
// (spec.md §8 S4: retries re-run the same hole, not the next one).
var retryHole = errors.New("orchestrator: retry hole")

// runHoleCycle retries attemptHole against the same hole until it
// succeeds, is skipped, or is aborted, per the configured max retries.
func (o *Orchestrator) runHoleCycle(ctx context.Context, hole pattern.HoleRecord) error {
	for {
		err := o.attemptHole(ctx, hole)
		if err == retryHole {
			continue
		}
		return err
	}
}

// attemptHole drives the state machine and collaborators through one
// full hole: plan → execute approach → (optionally detect) → plan final
// → execute final → module → pattern update, retrying or skipping on
// failure per o.cfg.MaxRetries (spec.md §5's ordering guarantee).
func (o *Orchestrator) attemptHole(ctx context.Context, hole pattern.HoleRecord) error {
	if err := o.pat.MarkInProgress(hole.Index); err != nil {
		return errors.Wrapf(err, "orchestrator: marking hole %d in progress", hole.Index)
	}

	if err := o.sm.GoalSet(); err != nil {
		return err
	}

	current, err := o.clients.Filter.GetState(ctx)
	if err != nil {
		return errors.Wrap(err, "orchestrator: fetching current pose")
	}
	o.planner.SetCurrentPose(current.Pose)

	approach := o.planner.PlanApproachSegment(hole.Position, o.cfg.ApproachOffsetM)
	if err := o.sm.PathPlotted(); err != nil {
		return err
	}

	outcome, err := o.exec.Execute(ctx, approach, o.cfg.ExecutionTimeout)
	if err != nil {
		return errors.Wrap(err, "orchestrator: executing approach segment")
	}
	if outcome != navexec.OutcomeComplete {
		return o.handleSegmentFailure(hole, "approach segment did not complete: "+outcomeReason(outcome))
	}

	if err := o.sm.ApproachReached(); err != nil {
		return err
	}
	if err := o.sm.Stopped(); err != nil {
		return err
	}

	goal := hole.Position
	detection, found, err := o.vis.DetectHole(ctx, nil)
	if err != nil {
		o.logger.Warnf("orchestrator: vision detection error, falling back to planned pose: %v", err)
		found = false
	}
	if found {
		if err := o.sm.HoleDetected(); err != nil {
			return err
		}
		goal = detection.WorldFromHole
		if err := o.sm.Converted(); err != nil {
			return err
		}
	} else {
		if err := o.sm.HoleNotFound(); err != nil {
			return err
		}
	}

	final := o.planner.PlanSegment(approach.Waypoints[len(approach.Waypoints)-1], goal)
	if err := o.sm.PathPlotted(); err != nil {
		return err
	}

	outcome, err = o.exec.Execute(ctx, final, o.cfg.ExecutionTimeout)
	if err != nil {
		return errors.Wrap(err, "orchestrator: executing final segment")
	}
	if outcome != navexec.OutcomeComplete {
		return o.handleSegmentFailure(hole, "final segment did not complete: "+outcomeReason(outcome))
	}

	if err := o.sm.FinalTrackComplete(); err != nil {
		return err
	}

	mctx := o.moduleContext(service.FollowerState{Pose: goal})
	result, err := o.mod.Execute(ctx, mctx)
	if err != nil {
		return o.handleSegmentFailure(hole, errors.Wrap(err, "module execute").Error())
	}
	if !result.Success {
		return o.handleSegmentFailure(hole, "module reported failure: "+result.Message)
	}

	if err := o.pat.MarkCompleted(hole.Index, nil); err != nil {
		return err
	}
	if err := o.sm.ModuleDone(); err != nil {
		return err
	}

	// A row end takes the U-turn even when it is the pattern's last hole;
	// Run then reports the complete pattern from PLANNING.
	isComplete := o.pat.IsComplete()
	isEchelonEnd := o.pat.IsEchelonEnd(hole.Index)
	if err := o.sm.PatternUpdated(isComplete && !isEchelonEnd, isEchelonEnd); err != nil {
		return err
	}

	switch {
	case isEchelonEnd:
		return o.runEchelonTurn(ctx)
	case isComplete:
		return o.sm.Returned()
	default:
		return nil
	}
}

// runEchelonTurn drives the planner's four-phase row-end maneuver as a
// special cycle (spec.md §4.3, §8 S2).
func (o *Orchestrator) runEchelonTurn(ctx context.Context) error {
	current := service.FollowerState{}
	for i := 0; i < 4; i++ {
		seg := o.planner.PlanRowEndManeuver(current.Pose)
		outcome, err := o.exec.Execute(ctx, seg, o.cfg.ExecutionTimeout)
		if err != nil {
			return errors.Wrap(err, "orchestrator: executing row-end maneuver leg")
		}
		if outcome != navexec.OutcomeComplete {
			o.logger.Warnf("orchestrator: row-end maneuver leg %d did not complete cleanly", i+1)
			break
		}
		current.Pose = seg.Waypoints[len(seg.Waypoints)-1]
	}
	return o.sm.EchelonTurnComplete()
}

// handleSegmentFailure applies the configured retry policy shared by
// segment timeouts, non-complete terminal outcomes, and module errors
// (spec.md §7's ServiceUnavailable/Timeout and ModuleError both route
// through SEGMENT_TIMEOUT -> RECOVERING): retry up to cfg.MaxRetries,
// then either mark the hole failed and move on to the next one, or, if
// cfg.SegmentTimeoutFallsBack is false, abort the mission entirely.
func (o *Orchestrator) handleSegmentFailure(hole pattern.HoleRecord, reason string) error {
	if err := o.sm.ExecutorTimeout(); err != nil {
		return err
	}
	if err := o.sm.BeginRecovery(); err != nil {
		return err
	}

	attempts := o.pat.Attempts(hole.Index)
	if attempts < o.cfg.MaxRetries {
		o.logger.Warnf("orchestrator: hole %d failed (%s), retrying (attempt %d/%d)", hole.Index, reason, attempts, o.cfg.MaxRetries)
		if err := o.sm.RecoverRetry(); err != nil {
			return err
		}
		return retryHole
	}

	if o.cfg.SegmentTimeoutFallsBack {
		o.logger.Warnf("orchestrator: hole %d exceeded max retries (%s), marking failed", hole.Index, reason)
		if err := o.pat.MarkFailed(hole.Index, reason); err != nil {
			return err
		}
		return o.sm.RecoverSkip()
	}

	o.logger.Errorf("orchestrator: hole %d exceeded max retries (%s), aborting mission", hole.Index, reason)
	if err := o.pat.MarkSkipped(hole.Index, reason); err != nil {
		return err
	}
	return o.sm.RecoverAbort()
}

func outcomeReason(outcome navexec.Outcome) string {
	switch outcome {
	case navexec.OutcomeTimeout:
		return "timed out"
	case navexec.OutcomeFailed:
		return "follower reported failure"
	case navexec.OutcomeAborted:
		return "follower reported aborted"
	case navexec.OutcomeCancelled:
		return "follower reported cancelled"
	default:
		return "unknown outcome"
	}
}
