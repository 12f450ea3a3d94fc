package module

import (
	"context"
	"testing"

	"go.viam.com/test"
	"go.viam.com/xstem/logging"
)

type fakeModule struct {
	executed bool
}

func (f *fakeModule) Initialize(ctx context.Context, mctx Context) error { return nil }

func (f *fakeModule) VerifyReady(ctx context.Context, mctx Context) (bool, error) { return true, nil }

func (f *fakeModule) Calibrate(ctx context.Context, mctx Context) error { return nil }

func (f *fakeModule) Execute(ctx context.Context, mctx Context) (Result, error) {
	f.executed = true
	return Result{Success: true}, nil
}

func (f *fakeModule) Shutdown(ctx context.Context, mctx Context) error { return nil }

func TestRegisterPanicsOnDuplicateName(t *testing.T) {
	Register("test-fake-dup", func(opts Options) (Module, error) { return &fakeModule{}, nil })
	test.That(t, func() {
		Register("test-fake-dup", func(opts Options) (Module, error) { return &fakeModule{}, nil })
	}, test.ShouldPanic)
}

func TestLookupReturnsNilForUnregisteredName(t *testing.T) {
	test.That(t, Lookup("test-does-not-exist"), test.ShouldBeNil)
}

func TestNewFallsBackToNullModuleWhenUnregistered(t *testing.T) {
	mod, err := New("test-does-not-exist-either", Options{}, logging.NewTestLogger())
	test.That(t, err, test.ShouldBeNil)
	_, isNull := mod.(Null)
	test.That(t, isNull, test.ShouldBeTrue)
}

func TestNewBuildsRegisteredModule(t *testing.T) {
	Register("test-fake-built", func(opts Options) (Module, error) { return &fakeModule{}, nil })
	mod, err := New("test-fake-built", Options{}, logging.NewTestLogger())
	test.That(t, err, test.ShouldBeNil)
	_, ok := mod.(*fakeModule)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestOptionsDecode(t *testing.T) {
	type cfg struct {
		FeedRate float64 `mapstructure:"feed_rate"`
	}
	opts := Options{"feed_rate": 2.5}
	var c cfg
	err := opts.Decode(&c)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.FeedRate, test.ShouldAlmostEqual, 2.5)
}

func TestOptionsFloat64CastsStringValues(t *testing.T) {
	opts := Options{"depth_m": "1.5"}
	test.That(t, opts.Float64("depth_m", 0), test.ShouldAlmostEqual, 1.5)
	test.That(t, opts.Float64("missing", 9), test.ShouldAlmostEqual, 9)
}

func TestOptionsStringAndBoolFallBackWhenAbsent(t *testing.T) {
	opts := Options{"tool_name": "auger", "armed": true}
	test.That(t, opts.String("tool_name", ""), test.ShouldEqual, "auger")
	test.That(t, opts.String("missing", "default"), test.ShouldEqual, "default")
	test.That(t, opts.Bool("armed", false), test.ShouldBeTrue)
	test.That(t, opts.Bool("missing", true), test.ShouldBeTrue)
}
