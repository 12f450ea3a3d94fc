// Package spatialmath implements the SE(3) pose and frame algebra shared
// by the path planner, coordinate loader, and vision gate. It is
// grounded on the shape of go.viam.com/rdk's referenceframe package (a
// first-class, frame-checked Pose type sitting on top of golang/geo and
// a quaternion library) as described throughout the reference pack,
// rewritten here from scratch since the retrieval did not include
// referenceframe's own source.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Pose is a rigid transform from frame B into frame A: "a_from_b".
// Composition is only defined when the inner frame labels match
// (spec.md §3's "(a_from_b) * (b_from_c) = a_from_c" invariant).
type Pose struct {
	Translation r3.Vector
	Rotation    mgl64.Quat
	FrameA      string
	FrameB      string
}

// NewPose builds a pose with the given translation and rotation between
// the named frames.
func NewPose(translation r3.Vector, rotation mgl64.Quat, frameA, frameB string) Pose {
	return Pose{Translation: translation, Rotation: rotation, FrameA: frameA, FrameB: frameB}
}

// NewTranslation builds a pure-translation pose (identity rotation).
func NewTranslation(translation r3.Vector, frameA, frameB string) Pose {
	return Pose{Translation: translation, Rotation: mgl64.QuatIdent(), FrameA: frameA, FrameB: frameB}
}

// NewZRotation builds a pure rotation about the Z axis by theta radians,
// per spec.md §4.1's requirement that the kernel expose Rz(theta).
func NewZRotation(theta float64, frameA, frameB string) Pose {
	return Pose{
		Translation: r3.Vector{},
		Rotation:    mgl64.QuatRotate(theta, mgl64.Vec3{0, 0, 1}),
		FrameA:      frameA,
		FrameB:      frameB,
	}
}

// Rz returns a Pose's rotation expressed as a yaw angle about Z, assuming
// the pose's rotation is a pure Z rotation (true of every pose this
// package constructs for a ground robot).
func (p Pose) Rz() float64 {
	// For a pure Z rotation, the quaternion is (cos(theta/2), 0, 0, sin(theta/2)).
	return 2 * math.Atan2(p.Rotation.Z(), p.Rotation.W)
}

// Compose returns a_from_c = (a_from_b) * (b_from_c). It panics if the
// inner frames don't match, per spec.md §8 property 7 ("pose composition
// panics / errors on mismatched inner frames") — this is a programmer
// error akin to the teacher's registry panicking on a duplicate
// registration, not a recoverable runtime condition.
func (aFromB Pose) Compose(bFromC Pose) Pose {
	if aFromB.FrameB != bFromC.FrameA {
		panic(fmt.Sprintf("spatialmath: cannot compose %s_from_%s with %s_from_%s: inner frames do not match",
			aFromB.FrameA, aFromB.FrameB, bFromC.FrameA, bFromC.FrameB))
	}
	rotatedB := aFromB.Rotation.Rotate(mgl64.Vec3{bFromC.Translation.X, bFromC.Translation.Y, bFromC.Translation.Z})
	translation := r3.Vector{
		X: aFromB.Translation.X + rotatedB[0],
		Y: aFromB.Translation.Y + rotatedB[1],
		Z: aFromB.Translation.Z + rotatedB[2],
	}
	rotation := aFromB.Rotation.Mul(bFromC.Rotation)
	return Pose{Translation: translation, Rotation: rotation, FrameA: aFromB.FrameA, FrameB: bFromC.FrameB}
}

// Inverse returns b_from_a, swapping the frame labels.
func (aFromB Pose) Inverse() Pose {
	invRot := aFromB.Rotation.Inverse()
	negTranslation := mgl64.Vec3{-aFromB.Translation.X, -aFromB.Translation.Y, -aFromB.Translation.Z}
	rotated := invRot.Rotate(negTranslation)
	return Pose{
		Translation: r3.Vector{X: rotated[0], Y: rotated[1], Z: rotated[2]},
		Rotation:    invRot,
		FrameA:      aFromB.FrameB,
		FrameB:      aFromB.FrameA,
	}
}

// Distance returns the planar (XY) Euclidean distance between two poses'
// translations, ignoring frame labels. Used by the planner for the
// approach-offset check and straight-segment spacing.
func (p Pose) Distance(other Pose) float64 {
	dx := p.Translation.X - other.Translation.X
	dy := p.Translation.Y - other.Translation.Y
	return math.Hypot(dx, dy)
}

// WithFrames returns a copy of p with new frame labels, leaving the
// transform itself untouched. Used when re-labeling an inverse result
// (e.g. hole_from_robot derived from robot_from_tool.Inverse()).
func (p Pose) WithFrames(frameA, frameB string) Pose {
	p.FrameA = frameA
	p.FrameB = frameB
	return p
}
