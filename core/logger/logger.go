// Package logger writes the bot's structured logs as JSON or key=value lines
// and carries update correlation ids through the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/stickerbot/core/buildinfo"
	coreconfig "github.com/m3rciful/stickerbot/core/config"
)

var (
	initOnce sync.Once

	closeMu sync.Mutex
	closed  bool
	out     *lineWriter
	files   []io.Closer

	levelVar     slog.LevelVar
	debugSampler = newSampler(1, 50)
	traceAll     bool

	base *slog.Logger

	// DB logs database connection events.
	DB = slog.New(slog.DiscardHandler)
	// MIG logs database migration events.
	MIG = slog.New(slog.DiscardHandler)
)

// settings is the resolved logging section of the config.
type settings struct {
	format   logFormat
	order    []string
	level    slog.Level
	num, den int
	file     string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{format: formatJSON, order: defaultKeyOrder, level: slog.LevelInfo, num: 1, den: 50}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	profile := strings.ToLower(strings.TrimSpace(lc.Profile))

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if profile == "debug" || profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.order = order
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	switch raw := strings.ToLower(strings.TrimSpace(lc.DebugSample)); raw {
	case "":
	case "0", "all":
		s.num, s.den = 0, 0
	default:
		if n, d, ok := parseSample(raw); ok {
			s.num, s.den = n, d
		}
	}

	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := resolve(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.num, s.den)
		traceAll = envFlag("TRACE") || envFlag("LOG_TRACE")

		sinks := []io.Writer{os.Stdout}
		if s.file != "" {
			f, err := openLogFile(s.file)
			if err != nil {
				initErr = err
				return
			}
			sinks = append(sinks, f)
			files = append(files, f)
		}
		out = newLineWriter(sinks, 64*1024)

		base = slog.New(newLineHandler(handlerConfig{
			level:    &levelVar,
			writer:   out,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(base)
		DB = base.With("component", "db")
		MIG = base.With("component", "db.migrate")

		logStartup(cfg)
	})
	return initErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func logStartup(cfg *coreconfig.Config) {
	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("mode", cfg.Telegram.RunMode),
			slog.String("driver", cfg.Session.Driver),
			slog.String("locale", cfg.I18n.DefaultLocale),
		)
	}
	Info(context.Background(), "app", "startup", attrs...)
}

// Shutdown flushes buffered log output and closes the log file.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Background returns context.Background() for call sites without a request context.
func Background() context.Context {
	return context.Background()
}

// LogEvent logs event at level through logg, or the context logger when
// logg is nil. The event name becomes the first attribute.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns the base logger scoped to a component.
func Component(name string) *slog.Logger {
	if base == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return base
	}
	return base.With("component", name)
}

// Event logs with the component attribute set.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	if component = strings.TrimSpace(component); component != "" {
		attrs = append([]slog.Attr{slog.String("component", component)}, attrs...)
	}
	LogEvent(ctx, nil, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 in the environment admits all of them.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
