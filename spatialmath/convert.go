package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// HeadingBetween returns the yaw angle, in radians, of the vector from
// (x0, y0) to (x1, y1), used by the coordinate loader to infer heading
// from the direction of travel between consecutive waypoints.
func HeadingBetween(x0, y0, x1, y1 float64) float64 {
	return math.Atan2(y1-y0, x1-x0)
}

// ENUToNWU converts an East-North-Up vector to North-West-Up, per
// spec.md §4.1: NWU_X = ENU_Y, NWU_Y = -ENU_X, NWU_Z = ENU_Z.
func ENUToNWU(enu r3.Vector) r3.Vector {
	return r3.Vector{X: enu.Y, Y: -enu.X, Z: enu.Z}
}

// NWUToENU is the inverse of ENUToNWU: ENU_X = -NWU_Y, ENU_Y = NWU_X,
// ENU_Z = NWU_Z. Composing the two is the identity (spec.md §8 property 7).
func NWUToENU(nwu r3.Vector) r3.Vector {
	return r3.Vector{X: -nwu.Y, Y: nwu.X, Z: nwu.Z}
}
