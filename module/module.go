// Package module defines the per-hole tool interface and a process-wide
// registry of named module constructors, in the shape of the teacher's
// component registry (go.viam.com/rdk/registry: RegisterComponent
// panics on a duplicate name, ComponentLookup returns nil on a miss),
// per spec.md §4.7.
package module

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"go.viam.com/xstem/logging"
	"go.viam.com/xstem/service"
)

// Options is a module's free-form, decoded configuration block.
type Options map[string]interface{}

// Decode unmarshals o into target, a pointer to a struct describing a
// module's expected option shape, per spec.md §6's per-module config.
func (o Options) Decode(target interface{}) error {
	return mapstructure.Decode(map[string]interface{}(o), target)
}

// Float64 reads a numeric option by key, tolerating the mix of JSON
// numbers, YAML scalars, and strings a free-form options block can
// carry depending on which format the platform config was loaded from.
func (o Options) Float64(key string, fallback float64) float64 {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return f
}

// String reads a string option by key, with a fallback if absent or of
// a type that can't be cast to a string.
func (o Options) String(key string, fallback string) string {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fallback
	}
	return s
}

// Bool reads a boolean option by key, with a fallback if absent or of a
// type that can't be cast to a bool.
func (o Options) Bool(key string, fallback bool) bool {
	v, ok := o[key]
	if !ok {
		return fallback
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return fallback
	}
	return b
}

// Context bundles everything a Module needs to act on a hole: the
// external service clients and the hole's world-frame target pose.
type Context struct {
	Clients service.Clients
	Target  service.FollowerState
	Logger  logging.Logger
	Options Options
}

// Result is the outcome of a module's Execute call.
type Result struct {
	Success bool
	Message string
}

// Module is a pluggable per-hole tool implementation: a loader, a
// blaster, a soil probe, or any other end effector driven over the
// shared CAN bus (spec.md §4.7).
type Module interface {
	// Initialize is called once when the module is selected, before any
	// hole is executed against it.
	Initialize(ctx context.Context, mctx Context) error
	// VerifyReady reports whether the module's hardware preconditions
	// are satisfied (e.g. loaded, homed, armed).
	VerifyReady(ctx context.Context, mctx Context) (bool, error)
	// Calibrate runs the module's one-time or per-session calibration
	// sequence.
	Calibrate(ctx context.Context, mctx Context) error
	// Execute performs the module's action at the current hole.
	Execute(ctx context.Context, mctx Context) (Result, error)
	// Shutdown is called on every exit path, successful or not, so the
	// module can return hardware to a safe state.
	Shutdown(ctx context.Context, mctx Context) error
}

// Null is a Module that does nothing and always reports ready, used
// when no tool module is configured (spec.md §6).
type Null struct{}

func (Null) Initialize(ctx context.Context, mctx Context) error { return nil }

func (Null) VerifyReady(ctx context.Context, mctx Context) (bool, error) { return true, nil }

func (Null) Calibrate(ctx context.Context, mctx Context) error { return nil }

func (Null) Execute(ctx context.Context, mctx Context) (Result, error) {
	return Result{Success: true, Message: "null module: no-op"}, nil
}

func (Null) Shutdown(ctx context.Context, mctx Context) error { return nil }

var _ Module = Null{}

// Constructor builds a Module instance from its decoded options.
type Constructor func(opts Options) (Module, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register records a named module constructor. It panics if name is
// already registered, mirroring the teacher's registry's
// duplicate-registration panic: a collision here is a programmer
// error caught at init time, not a runtime condition to recover from.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("module: %q is already registered", name))
	}
	registry[name] = ctor
}

// Lookup returns the constructor registered under name, or nil if none
// was registered.
func Lookup(name string) Constructor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// New builds the module registered under name with the given options.
// If name is unregistered, it logs a warning and falls back to Null,
// per spec.md §4.7's "missing module degrades to a no-op" behavior.
func New(name string, opts Options, logger logging.Logger) (Module, error) {
	ctor := Lookup(name)
	if ctor == nil {
		logger.Warnf("module: no module registered under %q, falling back to null module", name)
		return Null{}, nil
	}
	return ctor(opts)
}
