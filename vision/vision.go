// Package vision defines the hole-detection and alignment-verification
// gate consulted before a module executes on a hole, and a no-op
// fallback for configurations without a vision pipeline (spec.md §4.6).
// Detector internals (image processing, model inference) are out of
// scope per spec.md's Non-goals; this package only models the
// boundary interface and its trivial implementation.
package vision

import (
	"context"

	"go.viam.com/xstem/service"
	"go.viam.com/xstem/spatialmath"
)

// Detection is a single candidate hole location found in a camera frame.
type Detection struct {
	WorldFromHole spatialmath.Pose
	Confidence    float64
}

// Gate detects holes and verifies tool alignment before module
// execution.
type Gate interface {
	// DetectHole returns the best candidate hole pose visible to cam, or
	// ok=false if none was found above the gate's confidence threshold.
	DetectHole(ctx context.Context, cam service.Camera) (Detection, bool, error)
	// VerifyAlignment reports whether the robot's current pose is close
	// enough to target to proceed with module execution.
	VerifyAlignment(ctx context.Context, current, target spatialmath.Pose) (bool, error)
}

// Noop is a Gate that always finds nothing and always accepts alignment,
// used when no vision pipeline is configured (spec.md §6's optional
// vision block).
type Noop struct{}

func (Noop) DetectHole(ctx context.Context, cam service.Camera) (Detection, bool, error) {
	return Detection{}, false, nil
}

func (Noop) VerifyAlignment(ctx context.Context, current, target spatialmath.Pose) (bool, error) {
	return true, nil
}

var _ Gate = Noop{}
