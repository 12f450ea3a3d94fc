// Package pattern implements the resumable per-hole blast-pattern
// store: status tracking, attempt counting, completion statistics, and
// atomic save/load of a mission snapshot (spec.md §4.8).
package pattern

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/xstem/spatialmath"
)

// Status is a hole's lifecycle state within a single mission run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusSkipped    Status = "SKIPPED"
)

// IsTerminal reports whether s ends a hole's involvement in the run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// HoleRecord is one hole's mutable state within a BlastPattern.
type HoleRecord struct {
	Index               int
	Position            spatialmath.Pose
	Status              Status
	Attempts            int
	LastError           string
	Measurements        map[string]interface{}
	TimestampCompleted  *time.Time
}

// NotTerminalError reports an operation attempted against a hole whose
// status is already terminal for this run.
type NotTerminalError struct {
	Index int
}

func (e *NotTerminalError) Error() string {
	return fmt.Sprintf("pattern: hole %d is already terminal for this run", e.Index)
}

// Stats is a count of holes per status.
type Stats struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// BlastPattern is the ordered sequence of holes for one mission, with
// mutation restricted to the operations below (spec.md §3's "mutated
// only through the Pattern Store operations" invariant).
type BlastPattern struct {
	mu sync.Mutex

	MissionName      string
	Holes            []HoleRecord
	LastRowIndex     int
	CurrentHoleIndex *int
}

// New builds a BlastPattern from an ordered list of hole poses, all
// initially PENDING.
func New(missionName string, holePoses []spatialmath.Pose, lastRowIndex int) *BlastPattern {
	holes := make([]HoleRecord, len(holePoses))
	for i, pose := range holePoses {
		holes[i] = HoleRecord{
			Index:    i,
			Position: pose,
			Status:   StatusPending,
		}
	}
	return &BlastPattern{
		MissionName:  missionName,
		Holes:        holes,
		LastRowIndex: lastRowIndex,
	}
}

// NextPending returns the lowest-index PENDING hole, or ok=false if
// none remains.
func (p *BlastPattern) NextPending() (HoleRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.Holes {
		if h.Status == StatusPending {
			return h, true
		}
	}
	return HoleRecord{}, false
}

// MarkInProgress transitions hole i to IN_PROGRESS, incrementing
// attempts and setting it as the current hole.
func (p *BlastPattern) MarkInProgress(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, err := p.mustMutable(i)
	if err != nil {
		return err
	}
	h.Status = StatusInProgress
	h.Attempts++
	p.Holes[i] = *h
	idx := i
	p.CurrentHoleIndex = &idx
	return nil
}

// MarkCompleted transitions hole i to COMPLETED, stamping its
// completion time and merging measurements.
func (p *BlastPattern) MarkCompleted(i int, measurements map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, err := p.mustMutable(i)
	if err != nil {
		return err
	}
	h.Status = StatusCompleted
	now := time.Now().UTC()
	h.TimestampCompleted = &now
	if h.Measurements == nil {
		h.Measurements = map[string]interface{}{}
	}
	for k, v := range measurements {
		h.Measurements[k] = v
	}
	p.Holes[i] = *h
	return nil
}

// MarkFailed transitions hole i to FAILED, recording err.
func (p *BlastPattern) MarkFailed(i int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, err := p.mustMutable(i)
	if err != nil {
		return err
	}
	h.Status = StatusFailed
	h.LastError = reason
	p.Holes[i] = *h
	return nil
}

// MarkSkipped transitions hole i to SKIPPED, recording why.
func (p *BlastPattern) MarkSkipped(i int, why string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, err := p.mustMutable(i)
	if err != nil {
		return err
	}
	h.Status = StatusSkipped
	h.LastError = why
	p.Holes[i] = *h
	return nil
}

// mustMutable returns a pointer-like copy of hole i if it exists and is
// not already terminal. Caller must hold p.mu.
func (p *BlastPattern) mustMutable(i int) (*HoleRecord, error) {
	if i < 0 || i >= len(p.Holes) {
		return nil, errors.Errorf("pattern: hole %d does not exist", i)
	}
	h := p.Holes[i]
	if h.Status.IsTerminal() {
		return nil, &NotTerminalError{Index: i}
	}
	return &h, nil
}

// Attempts returns hole i's current attempt count.
func (p *BlastPattern) Attempts(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Holes[i].Attempts
}

// IsComplete reports whether no hole remains PENDING or IN_PROGRESS.
func (p *BlastPattern) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.Holes {
		if h.Status == StatusPending || h.Status == StatusInProgress {
			return false
		}
	}
	return true
}

// IsEchelonEnd reports whether hole i is the last hole of a planted row.
func (p *BlastPattern) IsEchelonEnd(i int) bool {
	return (i+1)%(p.LastRowIndex+1) == 0
}

// Stats returns the count of holes per status.
func (p *BlastPattern) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s Stats
	for _, h := range p.Holes {
		switch h.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// snapshot is the serialized, self-describing form of a BlastPattern
// (spec.md §6's pattern state format).
type snapshot struct {
	SnapshotID       string             `json:"snapshot_id"`
	MissionName      string             `json:"mission_name"`
	LastRowIndex     int                `json:"last_row_index"`
	CurrentHoleIndex *int               `json:"current_hole_index"`
	Timestamp        time.Time          `json:"timestamp"`
	Holes            []snapshotHole     `json:"holes"`
	Stats            Stats              `json:"stats"`
}

type snapshotHole struct {
	Index              int                    `json:"index"`
	Position           snapshotPosition       `json:"position"`
	Status             Status                 `json:"status"`
	Attempts           int                    `json:"attempts"`
	LastError          string                 `json:"last_error,omitempty"`
	Measurements       map[string]interface{} `json:"measurements,omitempty"`
	TimestampCompleted *time.Time             `json:"timestamp_completed,omitempty"`
}

type snapshotPosition struct {
	X, Y, Z float64
}

// Save serializes p and atomically writes it to path (write to a
// temp file, then rename), in the manner of the teacher's config
// writers that never leave a partially-written file in place.
func (p *BlastPattern) Save(path string) error {
	p.mu.Lock()
	snap := snapshot{
		SnapshotID:       uuid.NewString(),
		MissionName:      p.MissionName,
		LastRowIndex:     p.LastRowIndex,
		CurrentHoleIndex: p.CurrentHoleIndex,
		Timestamp:        time.Now().UTC(),
	}
	for _, h := range p.Holes {
		snap.Holes = append(snap.Holes, snapshotHole{
			Index:    h.Index,
			Position: snapshotPosition{X: h.Position.Translation.X, Y: h.Position.Translation.Y, Z: h.Position.Translation.Z},
			Status:              h.Status,
			Attempts:            h.Attempts,
			LastError:           h.LastError,
			Measurements:        h.Measurements,
			TimestampCompleted:  h.TimestampCompleted,
		})
	}
	p.mu.Unlock()
	snap.Stats = p.Stats()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "pattern: marshaling snapshot")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pattern-*.tmp")
	if err != nil {
		return errors.Wrap(err, "pattern: creating temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "pattern: writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "pattern: closing temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "pattern: renaming temp file into place")
	}
	return nil
}

// Load restores a BlastPattern from a snapshot written by Save.
//
// Rotation is not round-tripped: every restored hole pose carries an
// identity rotation, matching the source system's documented
// identity-on-load limitation. Heading recovery for a resumed hole is
// the Path Planner's responsibility, since it always derives travel
// heading from the direction of motion rather than a stored rotation.
//
// Any hole found IN_PROGRESS is reopened as PENDING with its attempts
// counter preserved, so a resumed mission retries rather than silently
// abandons the hole that was running when the snapshot was taken
// (spec.md §8 property scenario S6).
func Load(path string) (*BlastPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "pattern: reading snapshot")
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "pattern: unmarshaling snapshot")
	}

	holes := make([]HoleRecord, len(snap.Holes))
	for i, sh := range snap.Holes {
		status := sh.Status
		if status == StatusInProgress {
			status = StatusPending
		}
		holes[i] = HoleRecord{
			Index: sh.Index,
			Position: spatialmath.NewTranslation(
				r3.Vector{X: sh.Position.X, Y: sh.Position.Y, Z: sh.Position.Z}, "world", "hole",
			),
			Status:             status,
			Attempts:           sh.Attempts,
			LastError:          sh.LastError,
			Measurements:       sh.Measurements,
			TimestampCompleted: sh.TimestampCompleted,
		}
	}

	current := snap.CurrentHoleIndex
	if current != nil {
		if holes[*current].Status != StatusInProgress {
			current = nil
		}
	}

	return &BlastPattern{
		MissionName:      snap.MissionName,
		Holes:            holes,
		LastRowIndex:     snap.LastRowIndex,
		CurrentHoleIndex: current,
	}, nil
}
