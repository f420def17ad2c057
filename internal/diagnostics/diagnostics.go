// Package diagnostics is the "separate diagnostics channel" referenced by
// spec.md §6: every human-readable log line emitted by the store goes
// through here, never through a structured API response. It mirrors kopia's
// per-package logger facade (cli/app.go's `var log = logging.Module("kopia/cli")`,
// block/block_manager.go's `repologging.Logger("kopia/block")`), backed by
// zap with a TTY-aware colorized console encoder.
package diagnostics

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

func base() *zap.Logger {
	baseOnce.Do(func() {
		enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		})

		writer := zapcore.Lock(zapcore.AddSync(consoleWriter()))
		core := zapcore.NewCore(enc, writer, zapcore.InfoLevel)
		baseLogger = zap.New(core)
	})

	return baseLogger
}

// consoleWriter wraps stderr with go-colorable so ANSI codes render on
// Windows consoles too, matching cli/app.go's use of mattn/go-colorable for
// its colored text output.
func consoleWriter() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return colorable.NewColorableStderr()
	}

	return os.Stderr
}

func levelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var c *color.Color

	switch level {
	case zapcore.DebugLevel:
		c = color.New(color.FgHiBlack)
	case zapcore.WarnLevel:
		c = color.New(color.FgYellow)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		c = color.New(color.FgHiRed)
	default:
		c = color.New(color.FgHiCyan)
	}

	enc.AppendString(c.Sprint(level.CapitalString()))
}

// Module returns a named, structured logger for a single package — the
// CodeRecoder analogue of kopia's logging.Module/repologging.Logger.
func Module(name string) *zap.SugaredLogger {
	return base().Named(name).Sugar()
}

// SetLevel replaces the base logger with one logging at level and above.
// Only loggers obtained from Module after the call use the new level;
// loggers obtained earlier, including every package-level `log` variable,
// keep the level they were created with.
func SetLevel(level zapcore.Level) {
	base() // ensure default initialization has happened at least once

	// Rebuilding the core is simplest: the base logger is cheap to construct
	// and callers only set the level during startup, not on a hot path.
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	writer := zapcore.Lock(zapcore.AddSync(consoleWriter()))
	core := zapcore.NewCore(enc, writer, level)
	baseLogger = zap.New(core)
}
