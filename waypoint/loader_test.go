package waypoint

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func ptr(f float64) *float64 { return &f }

func TestLoadEmptyTableIsBadInput(t *testing.T) {
	_, err := Load(nil, Config{})
	test.That(t, err, test.ShouldNotBeNil)
	var bad *BadInputError
	test.That(t, errorsAs(err, &bad), test.ShouldBeTrue)
}

func errorsAs(err error, target **BadInputError) bool {
	if be, ok := err.(*BadInputError); ok {
		*target = be
		return true
	}
	return false
}

func TestLoadInfersForwardHeading(t *testing.T) {
	// Due east in ENU (increasing DX, constant DY) is decreasing NWU_Y
	// (NWU_X=ENU_Y, NWU_Y=-ENU_X), still due east, so the inferred NWU
	// heading is -pi/2.
	rows := []Row{
		{DX: 0, DY: 0},
		{DX: 10, DY: 0},
		{DX: 20, DY: 0},
	}
	poses, err := Load(rows, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[1].Rz(), test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, poses[2].Rz(), test.ShouldAlmostEqual, -math.Pi/2)
}

func TestLoadInfersBackwardHeadingAtLastPoint(t *testing.T) {
	// Due north in ENU (constant DX, increasing DY) is due north in NWU
	// too (NWU_X=ENU_Y increases, NWU_Y=-ENU_X stays 0), heading 0.
	rows := []Row{
		{DX: 0, DY: 0},
		{DX: 0, DY: 10},
	}
	poses, err := Load(rows, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[2].Rz(), test.ShouldAlmostEqual, 0)
}

func TestLoadUsesExplicitYaw(t *testing.T) {
	yaw := math.Pi
	rows := []Row{
		{DX: 0, DY: 0, Yaw: &yaw},
		{DX: 10, DY: 0},
	}
	poses, err := Load(rows, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[1].Rz(), test.ShouldAlmostEqual, math.Pi)
}

func TestLoadUsesBackwardHeadingAtConfiguredLastRowIndex(t *testing.T) {
	rows := []Row{
		{DX: 0, DY: 0},
		{DX: 0, DY: 10},
		{DX: 10, DY: 10},
	}
	poses, err := Load(rows, Config{LastRowIndex: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[2].Rz(), test.ShouldAlmostEqual, 0)
}

func TestLoadIndexesFromOne(t *testing.T) {
	rows := []Row{{DX: 1, DY: 1}, {DX: 2, DY: 2}}
	poses, err := Load(rows, Config{})
	test.That(t, err, test.ShouldBeNil)
	_, hasZero := poses[0]
	test.That(t, hasZero, test.ShouldBeFalse)
	test.That(t, poses[1].Translation.X, test.ShouldAlmostEqual, 1)
	test.That(t, poses[2].Translation.X, test.ShouldAlmostEqual, 2)
}
