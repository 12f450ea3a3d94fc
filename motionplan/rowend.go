package motionplan

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/xstem/spatialmath"
)

// rowEndPhase enumerates the four legs of a row-end U-turn (spec.md
// §4.3): pull past the headland buffer, swing onto the turn arc,
// straighten onto the next row's approach line, then settle.
const (
	phasePullOut = 1 + iota
	phaseSwing
	phaseStraighten
	phaseSettle
)

// PlanRowEndManeuver returns the next of the four row-end turn legs on
// each call, keyed off the planner's internal phase counter, and resets
// back to phase 1 after the fourth call (spec.md §8 property 9). The
// turn direction and row spacing come from the planner's Config.
func (p *Planner) PlanRowEndManeuver(currentPose spatialmath.Pose) TrackSegment {
	if p.turnPhase == 0 {
		p.turnPhase = phasePullOut
		p.turnHeldAt = currentPose
	}

	// Positive yaw about +Z is counter-clockwise seen from above: a left turn.
	sign := -1.0
	if p.cfg.TurnDirectionLeft {
		sign = 1.0
	}

	var seg TrackSegment
	switch p.turnPhase {
	case phasePullOut:
		// (1) straight into the headland buffer: translation only.
		start := currentPose
		goal := offsetAlongHeading(start, p.cfg.HeadlandBufferM)
		seg = TrackSegment{Kind: KindStraight, Waypoints: planStraight(start, goal, p.cfg.WaypointSpacingM)}
		p.turnHeldAt = goal
	case phaseSwing:
		// (2) in-place 90° turn in the configured direction: rotation only.
		start := p.turnHeldAt
		turned := rotateHeading(start, sign*p.cfg.TurnAngleRad)
		seg = TrackSegment{Kind: KindTurn, Waypoints: planTurnInPlace(start, turned)}
		p.turnHeldAt = turned
	case phaseStraighten:
		// (3) straight by the configured row spacing: translation only,
		// along the heading phase 2 just turned onto.
		start := p.turnHeldAt
		goal := offsetAlongHeading(start, p.cfg.RowSpacingM)
		seg = TrackSegment{Kind: KindStraight, Waypoints: planStraight(start, goal, p.cfg.WaypointSpacingM)}
		p.turnHeldAt = goal
	case phaseSettle:
		// (4) second 90° turn, same direction as phase 2: rotation only.
		start := p.turnHeldAt
		turned := rotateHeading(start, sign*p.cfg.TurnAngleRad)
		seg = TrackSegment{Kind: KindTurn, Waypoints: planTurnInPlace(start, turned)}
		p.turnHeldAt = turned
	}

	p.turnPhase++
	if p.turnPhase > phaseSettle {
		p.turnPhase = 0
	}
	return seg
}

// RowEndPhase reports the maneuver's current 1..4 phase, or 0 if no
// maneuver is in progress. Exposed for tests verifying the reset
// property.
func (p *Planner) RowEndPhase() int {
	return p.turnPhase
}

// planTurnInPlace returns a two-waypoint segment that holds position and
// rotates from start's heading to turned's, for the row-end maneuver's
// in-place 90° turn phases.
func planTurnInPlace(start, turned spatialmath.Pose) []spatialmath.Pose {
	return []spatialmath.Pose{
		spatialmath.NewPose(start.Translation, start.Rotation, start.FrameA, start.FrameB),
		spatialmath.NewPose(start.Translation, turned.Rotation, start.FrameA, start.FrameB),
	}
}

func offsetAlongHeading(pose spatialmath.Pose, distM float64) spatialmath.Pose {
	heading := pose.Rz()
	delta := r3.Vector{X: distM * math.Cos(heading), Y: distM * math.Sin(heading), Z: 0}
	return spatialmath.NewPose(pose.Translation.Add(delta), pose.Rotation, pose.FrameA, pose.FrameB)
}

func rotateHeading(pose spatialmath.Pose, deltaRad float64) spatialmath.Pose {
	newHeading := pose.Rz() + deltaRad
	return spatialmath.NewPose(pose.Translation, spatialmath.NewZRotation(newHeading, pose.FrameA, pose.FrameB).Rotation, pose.FrameA, pose.FrameB)
}
