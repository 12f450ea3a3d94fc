// Package motionplan builds geometric track segments: straight-line
// approaches and the four-phase row-end U-turn. Segments are opaque
// waypoint sequences handed to the navigation executor (spec.md §4.3);
// this package does no dynamic-feasibility planning, per spec.md's
// Non-goals.
package motionplan

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/spatialmath"
)

// Kind labels a segment's role, used only to verify the row-end
// sequence property (spec.md §8 property 9); otherwise segments are
// opaque to the rest of the system.
type Kind int

const (
	KindStraight Kind = iota
	KindTurn
)

// TrackSegment is an ordered sequence of waypoints handed to the
// navigation executor.
type TrackSegment struct {
	Kind      Kind
	Waypoints []spatialmath.Pose
}

// Config holds the planner's tuning knobs from spec.md §6's navigation
// tuning block.
type Config struct {
	WaypointSpacingM  float64
	ApproachOffsetM   float64
	RowSpacingM       float64
	HeadlandBufferM   float64
	TurnAngleRad      float64
	TurnDirectionLeft bool
}

// Planner builds track segments and tracks the row-end maneuver's
// internal 1..4 phase index (spec.md §4.3).
type Planner struct {
	cfg        Config
	logger     logging.Logger
	turnPhase  int
	lastPose   spatialmath.Pose
	turnHeldAt spatialmath.Pose
}

// New builds a Planner. Its current pose is the zero pose until
// SetCurrentPose is called.
func New(cfg Config, logger logging.Logger) *Planner {
	return &Planner{cfg: cfg, logger: logger}
}

// SetCurrentPose updates the planner's notion of the robot's current
// pose, used by PlanApproachSegment and PlanSegment as the start point.
func (p *Planner) SetCurrentPose(pose spatialmath.Pose) {
	p.lastPose = pose
}

// PlanSegment builds a straight-line interpolated track from start to
// goal at the configured spacing, heading oriented along the direction
// of travel (spec.md §4.3).
func (p *Planner) PlanSegment(start, goal spatialmath.Pose) TrackSegment {
	wps := planStraight(start, goal, p.cfg.WaypointSpacingM)
	return TrackSegment{Kind: KindStraight, Waypoints: wps}
}

// PlanApproachSegment builds a segment ending offsetM short of goal
// along the current→goal line, with heading unchanged from the robot's
// current heading so vision has a stable approach frame. If the current
// distance to goal is <= offsetM, the offset is skipped and a direct
// segment is planned instead, with a logged warning (spec.md §4.3,
// §8 property 8).
func (p *Planner) PlanApproachSegment(goal spatialmath.Pose, offsetM float64) TrackSegment {
	start := p.lastPose
	dist := start.Distance(goal)

	if dist <= offsetM {
		p.logger.Warnf("approach offset %.3fm >= distance %.3fm to goal, planning direct segment", offsetM, dist)
		return TrackSegment{Kind: KindStraight, Waypoints: planStraightKeepHeading(start, goal)}
	}

	scale := (dist - offsetM) / dist
	if scale < 0 {
		// Approach point would fall behind the robot: fall back to direct,
		// per spec.md §4.3's tie-break rule.
		p.logger.Warnf("approach point behind robot, falling back to direct segment")
		return TrackSegment{Kind: KindStraight, Waypoints: planStraightKeepHeading(start, goal)}
	}

	approachPoint := r3.Vector{
		X: start.Translation.X + scale*(goal.Translation.X-start.Translation.X),
		Y: start.Translation.Y + scale*(goal.Translation.Y-start.Translation.Y),
		Z: start.Translation.Z + scale*(goal.Translation.Z-start.Translation.Z),
	}
	approachPose := spatialmath.NewPose(approachPoint, start.Rotation, start.FrameA, start.FrameB)
	return TrackSegment{Kind: KindStraight, Waypoints: planStraightKeepHeading(start, approachPose)}
}

func planStraightKeepHeading(start, goal spatialmath.Pose) []spatialmath.Pose {
	return []spatialmath.Pose{
		spatialmath.NewPose(start.Translation, start.Rotation, start.FrameA, start.FrameB),
		spatialmath.NewPose(goal.Translation, start.Rotation, start.FrameA, start.FrameB),
	}
}

func planStraight(start, goal spatialmath.Pose, spacingM float64) []spatialmath.Pose {
	dist := start.Distance(goal)
	heading := math.Atan2(goal.Translation.Y-start.Translation.Y, goal.Translation.X-start.Translation.X)
	startFacingGoal := spatialmath.NewPose(start.Translation, spatialmath.NewZRotation(heading, start.FrameA, start.FrameB).Rotation, start.FrameA, start.FrameB)

	waypoints := []spatialmath.Pose{startFacingGoal}
	if dist == 0 {
		return waypoints
	}
	if spacingM <= 0 {
		spacingM = dist
	}
	steps := int(math.Ceil(dist / spacingM))
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		frac := math.Min(float64(i)/float64(steps), 1.0)
		pt := r3.Vector{
			X: start.Translation.X + frac*(goal.Translation.X-start.Translation.X),
			Y: start.Translation.Y + frac*(goal.Translation.Y-start.Translation.Y),
			Z: start.Translation.Z + frac*(goal.Translation.Z-start.Translation.Z),
		}
		waypoints = append(waypoints, spatialmath.NewPose(pt, startFacingGoal.Rotation, start.FrameA, start.FrameB))
	}
	return waypoints
}

// ToolTarget derives the robot navigation target for a hole pose by
// composing with the inverse of robot_from_tool, so that when the robot
// reaches the target pose, the tool frame coincides with the hole frame
// (spec.md §4.3's tool-target transform).
func ToolTarget(worldFromHole, robotFromTool spatialmath.Pose) spatialmath.Pose {
	holeFromRobot := robotFromTool.Inverse().WithFrames(worldFromHole.FrameB, robotFromTool.FrameA)
	return worldFromHole.Compose(holeFromRobot)
}
