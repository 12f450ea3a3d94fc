// Package waypoint loads an in-memory table of relative row offsets
// into absolute poses keyed by 1-based hole index, inferring heading
// from the direction of travel between consecutive points where the
// table doesn't supply one (spec.md §4.2).
package waypoint

import (
	"github.com/golang/geo/r3"
	"github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.viam.com/xstem/spatialmath"
)

// Row is one entry of the coordinate table: a translation offset from
// the mission origin, with an optional explicit yaw in radians.
type Row struct {
	DX, DY float64
	Yaw    *float64
}

// BadInputError reports a malformed or empty coordinate table, per
// spec.md §4.2's edge cases.
type BadInputError struct {
	Reason string
}

func (e *BadInputError) Error() string {
	return "waypoint: bad input: " + e.Reason
}

// Config controls heading inference (spec.md §4.2).
type Config struct {
	// LastRowIndex is the 1-based index of the point that ends the first
	// row; its heading is inferred backward like the table's last point.
	// Zero marks no such point.
	LastRowIndex int
	// Origin is an optional GPS origin carried alongside the table. Load
	// does not read it: poses carry no geographic tag and the relative
	// translations do not depend on it.
	Origin *geo.Point
}

// Load converts rows (1-indexed by position in the slice) into a map of
// world-frame poses, inferring yaw by forward difference except at the
// table's last point and at Config.LastRowIndex, which use a backward
// difference, per spec.md §4.2. The table's DX/DY are ENU offsets; both
// the pose translation and the inferred heading are computed in the
// kernel's native NWU frame (spec.md §4.1: NWU_X=ENU_Y, NWU_Y=-ENU_X).
func Load(rows []Row, cfg Config) (map[int]spatialmath.Pose, error) {
	if len(rows) == 0 {
		return nil, &BadInputError{Reason: "empty coordinate table"}
	}

	nwu := make([]r3.Vector, len(rows))
	for i, row := range rows {
		nwu[i] = spatialmath.ENUToNWU(r3.Vector{X: row.DX, Y: row.DY})
	}

	poses := make(map[int]spatialmath.Pose, len(rows))

	for i := range rows {
		idx := i + 1
		yaw, err := resolveYaw(rows, nwu, i, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "hole %d", idx)
		}
		pose := spatialmath.NewZRotation(yaw, "world", "hole")
		pose.Translation.X = nwu[i].X
		pose.Translation.Y = nwu[i].Y
		poses[idx] = pose
	}

	return poses, nil
}

func resolveYaw(rows []Row, nwu []r3.Vector, i int, cfg Config) (float64, error) {
	row := rows[i]
	if row.Yaw != nil {
		return *row.Yaw, nil
	}

	idx := i + 1
	useBackward := idx == len(rows) || idx == cfg.LastRowIndex

	if useBackward {
		if i == 0 {
			return 0, &BadInputError{Reason: "cannot infer heading backward for the only point in the table"}
		}
		return headingBetween(nwu[i-1], nwu[i]), nil
	}

	if i+1 >= len(rows) {
		return 0, &BadInputError{Reason: "cannot infer heading forward for the last point in the table"}
	}
	return headingBetween(nwu[i], nwu[i+1]), nil
}

func headingBetween(from, to r3.Vector) float64 {
	return spatialmath.HeadingBetween(from.X, from.Y, to.X, to.Y)
}
