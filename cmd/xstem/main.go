// Command xstem is the mission-core entrypoint: it loads a configuration
// file, optionally confirms with the operator, builds the per-hole
// collaborators, and drives a single mission run to completion.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/xstem/config"
	"go.viam.com/xstem/filterhealth"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/mission"
	"go.viam.com/xstem/module"
	"go.viam.com/xstem/motionplan"
	"go.viam.com/xstem/navexec"
	"go.viam.com/xstem/pattern"
	"go.viam.com/xstem/service"
	"go.viam.com/xstem/spatialmath"
	"go.viam.com/xstem/vision"
	"go.viam.com/xstem/waypoint"

	"github.com/benbjohnson/clock"
)

// NewClients is the seam where deployment-specific service clients are
// constructed. The wire protocol connecting FollowerService,
// FilterService, CanBus, and Camera to the real robot's services is out
// of scope for this module: it models only the duck-typed client
// interfaces in package service. A deployment links a build of this
// command with NewClients replaced to dial the real services.
var NewClients = func(cfg *config.Config, logger logging.Logger) (service.Clients, error) {
	return service.Clients{}, errors.New("cmd/xstem: no service client factory configured for this build")
}

func main() {
	app := &cli.App{
		Name:  "xstem",
		Usage: "run an autonomous blast-hole loading mission",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Required: true, Usage: "path to a JSON or YAML platform/mission config file"},
			&cli.StringFlag{Name: "resume", Usage: "path to a prior pattern snapshot to resume instead of starting fresh"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the operator confirmation prompt"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level, err := logging.LevelFromString(c.String("log-level"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logger := logging.New(level)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(errors.Wrap(err, "loading config").Error(), 1)
	}

	if !c.Bool("yes") {
		confirmed, err := confirmWithOperator(cfg)
		if err != nil {
			return cli.Exit(errors.Wrap(err, "operator confirmation").Error(), 1)
		}
		if !confirmed {
			logger.Infof("xstem: mission cancelled by operator")
			return cli.Exit("cancelled", 1)
		}
	}

	clients, err := NewClients(cfg, logger)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "building service clients").Error(), 1)
	}

	pat, err := loadOrBuildPattern(cfg, c.String("resume"))
	if err != nil {
		return cli.Exit(errors.Wrap(err, "loading blast pattern").Error(), 1)
	}

	var vis vision.Gate = vision.Noop{}
	mod, err := module.New(cfg.Module.ModuleName, module.Options(cfg.Module.Options), logger)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "building module").Error(), 1)
	}

	planner := motionplan.New(motionplan.Config{
		WaypointSpacingM:  cfg.Platform.Navigation.WaypointSpacingM,
		ApproachOffsetM:   cfg.Platform.Navigation.ApproachOffsetM,
		RowSpacingM:       cfg.Platform.Navigation.RowSpacingM,
		HeadlandBufferM:   cfg.Platform.Navigation.HeadlandBufferM,
		TurnAngleRad:      cfg.Platform.Navigation.TurnAngleRad,
		TurnDirectionLeft: cfg.Mission.TurnDirection == "left",
	}, logger)
	exec := navexec.New(clients.Follower, logger)
	fh := filterhealth.New(clients.Filter, clients.CanBus, clock.New(), logger)

	orchCfg := mission.Config{
		ExecutionTimeout:        cfg.Platform.Navigation.ExecutionTimeout.Std(),
		ApproachOffsetM:         cfg.Platform.Navigation.ApproachOffsetM,
		ConvergeTimeout:         cfg.Platform.Filter.ConvergenceTimeout.Std(),
		WiggleDuration:          cfg.Platform.Filter.WiggleDuration.Std(),
		WiggleAngularVel:        cfg.Platform.Filter.WiggleAngularVel,
		WiggleMaxAttempts:       cfg.Platform.Filter.WiggleMaxAttempts,
		MaxRetries:              cfg.Platform.Navigation.Retries,
		SegmentTimeoutFallsBack: cfg.Platform.Navigation.SegmentTimeoutFallsBack,
		SnapshotPath:            snapshotPath(cfg),
		AutosaveInterval:        30 * time.Second,
	}
	orch := mission.New(orchCfg, logger, planner, exec, fh, vis, mod, pat, clients)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go watchEmergencyStop(ctx, clients, orch, logger)

	if err := orch.Setup(ctx); err != nil {
		return cli.Exit(errors.Wrap(err, "mission setup").Error(), 1)
	}

	final, err := orch.Run(ctx)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "mission run").Error(), 1)
	}

	logger.Infof("xstem: mission ended in state %s", final)
	printPatternSummary(cfg.Mission.MissionName, pat.Stats())
	if final != mission.StateComplete {
		return cli.Exit("mission did not complete", 1)
	}
	return nil
}

// printPatternSummary renders the final per-status hole counts as a
// table on stdout for the operator.
func printPatternSummary(missionName string, stats pattern.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("mission %s — final pattern status", missionName))
	t.AppendHeader(table.Row{"Pending", "In Progress", "Completed", "Failed", "Skipped"})
	t.AppendRow(table.Row{stats.Pending, stats.InProgress, stats.Completed, stats.Failed, stats.Skipped})
	t.Render()
}

// confirmWithOperator summarizes the mission and asks the operator to
// proceed, unless -y was passed.
func confirmWithOperator(cfg *config.Config) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Run mission %q with module %q?", cfg.Mission.MissionName, cfg.Module.ModuleName)).
				Affirmative("Start").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// loadOrBuildPattern resumes from a snapshot if resumePath is set,
// otherwise builds a fresh pattern from the mission's coordinate table.
func loadOrBuildPattern(cfg *config.Config, resumePath string) (*pattern.BlastPattern, error) {
	if resumePath != "" {
		return pattern.Load(resumePath)
	}

	rows, err := readTable(cfg.Mission.TablePath)
	if err != nil {
		return nil, err
	}
	// last_row_index is a 0-based hole index (pattern.IsEchelonEnd);
	// waypoint.Config.LastRowIndex is 1-based.
	poseByIndex, err := waypoint.Load(rows, waypoint.Config{LastRowIndex: cfg.Mission.LastRowIndex + 1})
	if err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(poseByIndex))
	for i := range poseByIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	poses := make([]spatialmath.Pose, len(indices))
	for i, idx := range indices {
		poses[i] = poseByIndex[idx]
	}

	return pattern.New(cfg.Mission.MissionName, poses, cfg.Mission.LastRowIndex), nil
}

// readTable parses a CSV coordinate table into waypoint rows. Each
// record is dx,dy[,yaw]; a missing yaw column infers heading from the
// direction of travel.
func readTable(path string) ([]waypoint.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening coordinate table")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parsing coordinate table")
	}

	rows := make([]waypoint.Row, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, errors.Errorf("coordinate table row %d: expected at least 2 fields, got %d", i, len(rec))
		}
		dx, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "coordinate table row %d: parsing dx", i)
		}
		dy, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "coordinate table row %d: parsing dy", i)
		}
		row := waypoint.Row{DX: dx, DY: dy}
		if len(rec) >= 3 && rec[2] != "" {
			yaw, err := strconv.ParseFloat(rec[2], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "coordinate table row %d: parsing yaw", i)
			}
			row.Yaw = &yaw
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func snapshotPath(cfg *config.Config) string {
	return cfg.Mission.MissionName + ".snapshot.json"
}

// watchEmergencyStop waits for ctx cancellation (SIGINT/SIGTERM) and
// requests a graceful shutdown of the orchestrator (RequestShutdown).
// It does not call orch.EmergencyStop; no e-stop event source is
// subscribed to in this command.
func watchEmergencyStop(ctx context.Context, clients service.Clients, orch *mission.Orchestrator, logger logging.Logger) {
	<-ctx.Done()
	logger.Infof("xstem: shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	orch.RequestShutdown(shutdownCtx)
}
