// Package config loads and validates the mission core's configuration
// tree from JSON or YAML, detected by file extension, and provides an
// fsnotify-based watcher for use between missions (spec.md §6, §9's
// "unknown keys are errors" redesign flag).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from the human-readable
// strings ("2s", "500ms") both spec.md §6 and the original source's
// YAML config use, since neither encoding/json nor yaml.v3 parse a
// duration string into the underlying int64 by default.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: parsing duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: parsing duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ServiceEndpoint names a single external service's network location.
type ServiceEndpoint struct {
	Name    string   `json:"name" yaml:"name"`
	Host    string   `json:"host" yaml:"host"`
	Port    int      `json:"port" yaml:"port"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// FilterTuning controls the localization filter's convergence checks
// and wiggle recovery.
type FilterTuning struct {
	ConvergenceTimeout Duration `json:"convergence_timeout" yaml:"convergence_timeout"`
	MaxRetries         int      `json:"max_retries" yaml:"max_retries"`
	WiggleDuration     Duration `json:"wiggle_duration" yaml:"wiggle_duration"`
	WiggleAngularVel   float64  `json:"wiggle_angular_velocity" yaml:"wiggle_angular_velocity"`
	WiggleCheckRate    float64  `json:"wiggle_check_rate" yaml:"wiggle_check_rate"`
	WiggleMaxAttempts  int      `json:"wiggle_max_attempts" yaml:"wiggle_max_attempts"`
}

// NavigationTuning controls the path planner and navigation executor.
type NavigationTuning struct {
	WaypointSpacingM        float64  `json:"waypoint_spacing_m" yaml:"waypoint_spacing_m"`
	ApproachOffsetM         float64  `json:"approach_offset_m" yaml:"approach_offset_m"`
	RowSpacingM             float64  `json:"row_spacing_m" yaml:"row_spacing_m"`
	TurnSpacingM            float64  `json:"turn_spacing_m" yaml:"turn_spacing_m"`
	ExecutionTimeout        Duration `json:"execution_timeout" yaml:"execution_timeout"`
	TrackLoadWait           Duration `json:"track_load_wait" yaml:"track_load_wait"`
	PositioningToleranceM   float64  `json:"positioning_tolerance_m" yaml:"positioning_tolerance_m"`
	HeadingToleranceRad     float64  `json:"heading_tolerance_rad" yaml:"heading_tolerance_rad"`
	HeadlandBufferM         float64  `json:"headland_buffer_m" yaml:"headland_buffer_m"`
	TurnAngleRad            float64  `json:"turn_angle_rad" yaml:"turn_angle_rad"`
	Retries                 int      `json:"retries" yaml:"retries"`
	RetryDelay              Duration `json:"retry_delay" yaml:"retry_delay"`
	SegmentTimeoutFallsBack bool     `json:"segment_timeout_falls_back" yaml:"segment_timeout_falls_back"`
}

// VisionCamera describes one camera's vision-pipeline configuration.
type VisionCamera struct {
	ServiceName string  `json:"service_name" yaml:"service_name"`
	ModelPath   string  `json:"model_path" yaml:"model_path"`
	OffsetX     float64 `json:"offset_x" yaml:"offset_x"`
	OffsetY     float64 `json:"offset_y" yaml:"offset_y"`
	OffsetZ     float64 `json:"offset_z" yaml:"offset_z"`
	PitchRad    float64 `json:"pitch_rad" yaml:"pitch_rad"`
}

// VisionTuning controls whether and how the vision gate is used.
type VisionTuning struct {
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Cameras []VisionCamera `json:"cameras" yaml:"cameras"`
}

// PlatformConfig describes the external services and tuning shared by
// every mission run on this platform.
type PlatformConfig struct {
	Services         []ServiceEndpoint `json:"services" yaml:"services"`
	Filter           FilterTuning      `json:"filter" yaml:"filter"`
	Navigation       NavigationTuning  `json:"navigation" yaml:"navigation"`
	Vision           VisionTuning      `json:"vision" yaml:"vision"`
	CanCommandRate   float64           `json:"can_command_rate" yaml:"can_command_rate"`
	CanRecoveryDelay Duration          `json:"can_recovery_delay" yaml:"can_recovery_delay"`
}

// MissionConfig describes one mission run's pattern and module choice.
type MissionConfig struct {
	MissionName      string `json:"mission_name" yaml:"mission_name"`
	ModuleName       string `json:"module_name" yaml:"module_name"`
	TablePath        string `json:"table_path" yaml:"table_path"`
	CoordinateSystem string `json:"coordinate_system" yaml:"coordinate_system"`
	LastRowIndex     int    `json:"last_row_index" yaml:"last_row_index"`
	TurnDirection    string `json:"turn_direction" yaml:"turn_direction"`
	RowSpacingM      float64 `json:"row_spacing_m" yaml:"row_spacing_m"`
}

// ModuleConfig describes the per-hole tool module's identity and
// free-form options, decoded downstream by module.Options.Decode.
type ModuleConfig struct {
	ModuleName string                 `json:"module_name" yaml:"module_name"`
	ModuleType string                 `json:"module_type" yaml:"module_type"`
	Options    map[string]interface{} `json:"options" yaml:"options"`
}

// Config is the complete, validated configuration tree for one run.
type Config struct {
	Platform PlatformConfig `json:"platform" yaml:"platform"`
	Mission  MissionConfig  `json:"mission" yaml:"mission"`
	Module   ModuleConfig   `json:"module" yaml:"module"`
}

// Validate checks required fields and cross-field invariants, per
// spec.md §9's "validated configuration records" redesign flag.
func (c *Config) Validate() error {
	if c.Mission.MissionName == "" {
		return errors.New("config: mission.mission_name is required")
	}
	if c.Mission.TablePath == "" {
		return errors.New("config: mission.table_path is required")
	}
	switch strings.ToUpper(c.Mission.CoordinateSystem) {
	case "ENU", "NWU":
	default:
		return errors.Errorf("config: mission.coordinate_system must be ENU or NWU, got %q", c.Mission.CoordinateSystem)
	}
	switch strings.ToLower(c.Mission.TurnDirection) {
	case "left", "right":
	default:
		return errors.Errorf("config: mission.turn_direction must be left or right, got %q", c.Mission.TurnDirection)
	}
	if c.Platform.Navigation.ExecutionTimeout.Std() <= 0 {
		return errors.New("config: platform.navigation.execution_timeout must be positive")
	}
	return nil
}

// Load reads a configuration tree from path, detecting JSON vs YAML by
// extension (.json vs .yml/.yaml), rejecting unknown fields, and
// validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: reading file")
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "config: decoding yaml")
		}
	case ".json":
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, errors.Wrap(err, "config: decoding json")
		}
	default:
		return nil, errors.Errorf("config: unrecognized extension %q, want .json, .yml, or .yaml", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watcher notifies of edits to a configuration file on disk.
//
// It is intentionally not wired into any running-mission code path: a
// mission in progress must not have its pattern source or row geometry
// change out from under it. Watcher exists for operator tooling to use
// between missions, to pick up an edited file before the next run
// without restarting the process.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
}

// NewWatcher begins watching path for writes and renames.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config: creating watcher")
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, errors.Wrap(err, "config: watching directory")
	}
	return &Watcher{fsw: fsw, path: path}, nil
}

// Changes returns a channel of reloaded configs, one per detected write
// or rename of the watched path. Decode errors are dropped with a
// nil send suppressed; callers should treat a closed channel as the
// watcher having been closed.
func (w *Watcher) Changes() <-chan *Config {
	out := make(chan *Config)
	go func() {
		defer close(out)
		for event := range w.fsw.Events {
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			out <- cfg
		}
	}()
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
