// Package logging provides the structured logger used throughout the
// mission core. It is a thin wrapper over zap so that callers depend on
// a small interface rather than a concrete logging library.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a serializable log level, mirroring the teacher's
// logging.Level (see logging/logging_test.go in the reference pack):
// it round-trips through JSON as a lowercase string and accepts
// "warning" as an alias for WARN.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case INFO:
		return "info"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// LevelFromString parses a level name, case-insensitively, accepting
// "warning" as an alias for "warn".
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the logging surface consumed by every mission-core
// component. Keeping it as an interface (rather than *zap.SugaredLogger
// directly) lets tests substitute a recording logger without pulling in
// zap's test observer machinery everywhere.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	With(args ...interface{}) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger at the given minimum level, writing human-readable
// output to stderr.
func New(level Level) Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	z, err := cfg.Build()
	if err != nil {
		// zap.NewDevelopmentConfig().Build() only fails on a broken sink
		// configuration, which cannot happen with the defaults above.
		panic(err)
	}
	return &zapLogger{sugar: z.Sugar()}
}

// NewTestLogger builds a Logger suitable for use in tests: debug level,
// no caller/stacktrace decoration.
func NewTestLogger() Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &zapLogger{sugar: z.Sugar()}
}

func (z *zapLogger) Debugf(template string, args ...interface{}) { z.sugar.Debugf(template, args...) }
func (z *zapLogger) Infof(template string, args ...interface{})  { z.sugar.Infof(template, args...) }
func (z *zapLogger) Warnf(template string, args ...interface{})  { z.sugar.Warnf(template, args...) }
func (z *zapLogger) Errorf(template string, args ...interface{}) { z.sugar.Errorf(template, args...) }

func (z *zapLogger) With(args ...interface{}) Logger {
	return &zapLogger{sugar: z.sugar.With(args...)}
}
