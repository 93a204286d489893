// Package logger is the process-wide structured logger for layerfs.
//
// Records go through log/slog, either to a colored text handler meant for
// terminals or to the stdlib JSON handler. The *Ctx variants prepend the
// fields of the LogContext carried by the context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config selects level, format and destination.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`   // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format" yaml:"format"` // text, json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr, or file path
}

// sink is everything the active handler was built from.
type sink struct {
	w     io.Writer
	file  *os.File // non-nil when w is a log file we opened
	json  bool
	color bool
}

var (
	level = new(slog.LevelVar)

	mu      sync.Mutex
	current sink
	active  atomic.Pointer[slog.Logger]
)

func init() {
	current = sink{w: os.Stderr, color: isTerminal(os.Stderr)}
	rebuild()
}

// rebuild installs a new handler for current. Callers hold mu, except init.
func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if current.json {
		h = slog.NewJSONHandler(current.w, opts)
	} else {
		h = NewColorTextHandler(current.w, opts, current.color)
	}
	active.Store(slog.New(h))
}

// ParseLevel maps DEBUG, INFO, WARN or ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Init applies cfg. Empty fields keep their current value.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Output != "" {
		next, err := openSink(cfg.Output)
		if err != nil {
			return err
		}
		if current.file != nil {
			_ = current.file.Close()
		}
		next.json = current.json
		current = next
	}
	if cfg.Format != "" {
		if err := setFormat(cfg.Format); err != nil {
			return err
		}
	}
	if cfg.Level != "" {
		l, ok := ParseLevel(cfg.Level)
		if !ok {
			return fmt.Errorf("invalid log level %q", cfg.Level)
		}
		level.Set(l)
	}

	rebuild()
	return nil
}

func openSink(output string) (sink, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return sink{w: os.Stdout, color: isTerminal(os.Stdout)}, nil
	case "stderr":
		return sink{w: os.Stderr, color: isTerminal(os.Stderr)}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return sink{}, fmt.Errorf("failed to open log file %q: %w", output, err)
	}
	return sink{w: f, file: f}, nil
}

func setFormat(format string) error {
	switch strings.ToLower(format) {
	case "text":
		current.json = false
	case "json":
		current.json = true
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// InitWithWriter sends records to w. Tests use it to capture output.
func InitWithWriter(w io.Writer, lvl, format string, color bool) {
	mu.Lock()
	defer mu.Unlock()

	if current.file != nil {
		_ = current.file.Close()
	}
	current = sink{w: w, color: color}
	if format != "" {
		_ = setFormat(format)
	}
	if l, ok := ParseLevel(lvl); ok {
		level.Set(l)
	}
	rebuild()
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(lvl string) {
	if l, ok := ParseLevel(lvl); ok {
		level.Set(l)
	}
}

// SetFormat switches between text and json. Unknown names are ignored.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	if setFormat(format) == nil {
		rebuild()
	}
}

// Enabled reports whether records at l are currently emitted.
func Enabled(l slog.Level) bool {
	return l >= level.Level()
}

func emit(ctx context.Context, l slog.Level, msg string, args []any) {
	if !Enabled(l) {
		return
	}
	args = FromContext(ctx).prepend(args)
	active.Load().Log(ctx, l, msg, args...)
}

// Debug logs msg with key/value pairs or slog.Attrs.
func Debug(msg string, args ...any) { emit(context.Background(), slog.LevelDebug, msg, args) }

// Info logs msg with key/value pairs or slog.Attrs.
func Info(msg string, args ...any) { emit(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs msg with key/value pairs or slog.Attrs.
func Warn(msg string, args ...any) { emit(context.Background(), slog.LevelWarn, msg, args) }

// Error logs msg with key/value pairs or slog.Attrs.
func Error(msg string, args ...any) { emit(context.Background(), slog.LevelError, msg, args) }

// DebugCtx is Debug with the LogContext fields of ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx is Info with the LogContext fields of ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx is Warn with the LogContext fields of ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx is Error with the LogContext fields of ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelError, msg, args)
}

// With returns a logger that adds args to every record.
func With(args ...any) *slog.Logger {
	return active.Load().With(args...)
}

// Duration returns the milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
