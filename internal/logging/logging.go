// Package logging builds the logger shared by every component: a zap core
// exposed through an slog front end.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration options.
type Config struct {
	// Format is "text" (console) or "json".
	Format string
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string
	// Output is where logs are written (defaults to os.Stderr).
	Output io.Writer
	// OnRecord, when set, is called for every entry that is written.
	OnRecord func(zapcore.Level)
}

// New creates a logger from cfg.
func New(cfg Config) (*slog.Logger, error) {
	core, err := newCore(cfg)
	if err != nil {
		return nil, err
	}
	return slog.New(zapslog.NewHandler(core)), nil
}

// newCore builds the zap core behind New.
func newCore(cfg Config) (zapcore.Core, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "text", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(output)), level)
	if cfg.OnRecord != nil {
		core = &hookCore{Core: core, hook: cfg.OnRecord}
	}
	return core, nil
}

// parseLevel converts a level name to a zapcore.Level. Empty means info.
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// hookCore reports each written entry before passing it on.
type hookCore struct {
	zapcore.Core
	hook func(zapcore.Level)
}

//nolint:gocritic // hugeParam: interface requires value receiver
func (c *hookCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

//nolint:gocritic // hugeParam: interface requires value receiver
func (c *hookCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	c.hook(entry.Level)
	return c.Core.Write(entry, fields)
}

func (c *hookCore) With(fields []zapcore.Field) zapcore.Core {
	return &hookCore{Core: c.Core.With(fields), hook: c.hook}
}
