package pattern

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"go.viam.com/xstem/spatialmath"
)

func testPoses(n int) []spatialmath.Pose {
	poses := make([]spatialmath.Pose, n)
	for i := range poses {
		poses[i] = spatialmath.NewTranslation(r3.Vector{X: float64(i + 1), Y: 0}, "world", "hole")
	}
	return poses
}

func TestNextPendingReturnsLowestIndex(t *testing.T) {
	p := New("m", testPoses(3), 7)
	h, ok := p.NextPending()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, h.Index, test.ShouldEqual, 0)
}

func TestMarkInProgressIncrementsAttempts(t *testing.T) {
	p := New("m", testPoses(2), 7)
	test.That(t, p.MarkInProgress(0), test.ShouldBeNil)
	test.That(t, p.Holes[0].Status, test.ShouldEqual, StatusInProgress)
	test.That(t, p.Holes[0].Attempts, test.ShouldEqual, 1)
	test.That(t, *p.CurrentHoleIndex, test.ShouldEqual, 0)
}

func TestTerminalHolesAreNotRevisited(t *testing.T) {
	p := New("m", testPoses(2), 7)
	test.That(t, p.MarkInProgress(0), test.ShouldBeNil)
	test.That(t, p.MarkCompleted(0, nil), test.ShouldBeNil)

	h, ok := p.NextPending()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, h.Index, test.ShouldEqual, 1)

	err := p.MarkInProgress(0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIsEchelonEnd(t *testing.T) {
	p := New("m", testPoses(8), 3)
	test.That(t, p.IsEchelonEnd(3), test.ShouldBeTrue)
	test.That(t, p.IsEchelonEnd(7), test.ShouldBeTrue)
	test.That(t, p.IsEchelonEnd(0), test.ShouldBeFalse)
	test.That(t, p.IsEchelonEnd(2), test.ShouldBeFalse)
}

func TestIsCompleteTracksRemainingHoles(t *testing.T) {
	p := New("m", testPoses(1), 7)
	test.That(t, p.IsComplete(), test.ShouldBeFalse)
	test.That(t, p.MarkInProgress(0), test.ShouldBeNil)
	test.That(t, p.IsComplete(), test.ShouldBeFalse)
	test.That(t, p.MarkCompleted(0, nil), test.ShouldBeNil)
	test.That(t, p.IsComplete(), test.ShouldBeTrue)
}

func TestStatsCountsPerStatus(t *testing.T) {
	p := New("m", testPoses(3), 7)
	test.That(t, p.MarkInProgress(0), test.ShouldBeNil)
	test.That(t, p.MarkCompleted(0, nil), test.ShouldBeNil)
	test.That(t, p.MarkFailed(1, "bad"), test.ShouldBeNil)

	s := p.Stats()
	test.That(t, s.Completed, test.ShouldEqual, 1)
	test.That(t, s.Failed, test.ShouldEqual, 1)
	test.That(t, s.Pending, test.ShouldEqual, 1)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := New("mission-1", testPoses(3), 3)
	test.That(t, p.MarkInProgress(0), test.ShouldBeNil)
	test.That(t, p.MarkCompleted(0, map[string]interface{}{"depth_m": 1.5}), test.ShouldBeNil)
	test.That(t, p.MarkInProgress(1), test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "pattern.json")
	test.That(t, p.Save(path), test.ShouldBeNil)

	loaded, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.MissionName, test.ShouldEqual, "mission-1")
	test.That(t, loaded.LastRowIndex, test.ShouldEqual, 3)

	test.That(t, loaded.Holes[0].Status, test.ShouldEqual, StatusCompleted)
	test.That(t, loaded.Holes[0].Attempts, test.ShouldEqual, 1)
	test.That(t, loaded.Holes[0].Measurements["depth_m"], test.ShouldEqual, 1.5)
	test.That(t, loaded.Holes[0].Position.Translation.X, test.ShouldAlmostEqual, 1.0)

	// hole 1 was IN_PROGRESS at save time: it reopens as PENDING with
	// attempts preserved, and is no longer the current hole.
	test.That(t, loaded.Holes[1].Status, test.ShouldEqual, StatusPending)
	test.That(t, loaded.Holes[1].Attempts, test.ShouldEqual, 1)
	test.That(t, loaded.CurrentHoleIndex, test.ShouldBeNil)

	test.That(t, loaded.Holes[2].Status, test.ShouldEqual, StatusPending)
}

func TestSaveLoadRoundTripRotationIsIdentity(t *testing.T) {
	poses := []spatialmath.Pose{spatialmath.NewZRotation(1.0, "world", "hole")}
	p := New("m", poses, 7)
	path := filepath.Join(t.TempDir(), "pattern.json")
	test.That(t, p.Save(path), test.ShouldBeNil)

	loaded, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Holes[0].Position.Rz(), test.ShouldAlmostEqual, 0)
}
