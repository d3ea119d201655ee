// Package logging builds the zap loggers shared by every component.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	BuildTypeNone    = ""
	BuildTypeDev     = "dev"
	BuildTypeRelease = "release"

	LogDirectory = "logs"
	LogFilename  = "soundbridge-latest-run.log"
)

// New returns a sugared logger for buildType and the level handle that
// controls it. Release builds log to a file, everything else to stderr with
// colored levels.
func New(buildType, level string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	var cfg zap.Config

	if buildType == BuildTypeRelease {
		if err := os.MkdirAll(LogDirectory, 0o755); err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("failed to create log directory %s: %w", LogDirectory, err)
		}

		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{filepath.Join(LogDirectory, LogFilename)}
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		parsed, err := ParseLevel(level)
		if err != nil {
			return nil, zap.AtomicLevel{}, err
		}
		cfg.Level.SetLevel(parsed)
	}

	cfg.EncoderConfig.EncodeCaller = nil
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	cfg.EncoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("%-24s", name))
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger.Sugar(), cfg.Level, nil
}

// ParseLevel parses a level name such as "debug" or "warn"
func ParseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}
