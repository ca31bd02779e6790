package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Config selects the process-wide log backend.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

var (
	baseMu sync.RWMutex
	base   = newSlog(Config{})
)

// Configure replaces the process-wide backend used by component loggers.
// Loggers created before the call keep writing through the new backend.
func Configure(cfg Config) {
	handler := newSlog(cfg)
	baseMu.Lock()
	base = handler
	baseMu.Unlock()
}

func newSlog(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

func current() *slog.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// componentLogger formats printf-style call sites and emits them through slog
// tagged with the component name.
type componentLogger struct {
	component string
	attrs     []any
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

// With returns a copy of the logger carrying extra structured attributes.
func (l *componentLogger) With(args ...any) Logger {
	attrs := append(append([]any{}, l.attrs...), args...)
	return &componentLogger{component: l.component, attrs: attrs}
}

func (l *componentLogger) emit(level slog.Level, format string, args []any) {
	logger := current()
	if !logger.Enabled(context.Background(), level) {
		return
	}
	attrs := make([]any, 0, len(l.attrs)+2)
	if l.component != "" {
		attrs = append(attrs, "component", l.component)
	}
	attrs = append(attrs, l.attrs...)
	logger.Log(context.Background(), level, fmt.Sprintf(format, args...), attrs...)
}

func (l *componentLogger) Debug(format string, args ...any) {
	l.emit(slog.LevelDebug, format, args)
}

func (l *componentLogger) Info(format string, args ...any) {
	l.emit(slog.LevelInfo, format, args)
}

func (l *componentLogger) Warn(format string, args ...any) {
	l.emit(slog.LevelWarn, format, args)
}

func (l *componentLogger) Error(format string, args ...any) {
	l.emit(slog.LevelError, format, args)
}
