// Package logging builds named slog loggers on top of zap.
//
// A root logger owns the output (stdout or a rotating file). Named child
// loggers write through the same output with their own level, and a child
// with enabled: false discards everything.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager owns the configured outputs and hands out named loggers.
type Manager struct {
	cfg       *LoggingConfig
	encoder   zapcore.Encoder
	sinks     []zapcore.WriteSyncer
	closers   []io.Closer
	rootLevel zapcore.Level

	mu      sync.Mutex
	loggers map[string]*slog.Logger
}

// New configures logging from cfg. An unknown root output type is an error.
func New(cfg *LoggingConfig) (*Manager, error) {
	return newManager(cfg, zapcore.AddSync(os.Stdout))
}

func newManager(cfg *LoggingConfig, stdout zapcore.WriteSyncer) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultLoggingConfig()
	}
	root := cfg.root()

	rootLevel, err := zapcore.ParseLevel(root.Level)
	if err != nil {
		return nil, fmt.Errorf("root logger: %w", err)
	}

	m := &Manager{
		cfg:       cfg,
		encoder:   newEncoder(root.Pattern, cfg.Colorize && root.Type == TypeStdout),
		rootLevel: rootLevel,
		loggers:   make(map[string]*slog.Logger),
	}

	switch root.Type {
	case TypeStdout:
		m.sinks = append(m.sinks, stdout)
	case TypeFile:
		every, err := rotationInterval(root.Age)
		if err != nil {
			return nil, fmt.Errorf("root logger: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, root.Filename),
			MaxBackups: root.Keep,
		}
		m.sinks = append(m.sinks, zapcore.AddSync(lj))
		if every > 0 {
			m.closers = append(m.closers, startRotation(lj, every))
		}
		m.closers = append(m.closers, lj)
		if cfg.ConsoleInline {
			m.sinks = append(m.sinks, stdout)
		}
	default:
		return nil, fmt.Errorf("unsupported logger type %q", root.Type)
	}

	for name, lc := range cfg.Loggers {
		if lc.Level == "" {
			continue
		}
		if _, err := zapcore.ParseLevel(lc.Level); err != nil {
			return nil, fmt.Errorf("logger %s: %w", name, err)
		}
	}

	return m, nil
}

func newEncoder(pattern string, colorize bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if pattern == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	if colorize {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

// Root returns the root logger.
func (m *Manager) Root() *slog.Logger {
	return m.Logger(RootLogger)
}

// Logger returns the named logger, creating it on first use. Loggers not
// present in the configuration inherit the root level.
func (m *Manager) Logger(name string) *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[name]; ok {
		return l
	}
	l := slog.New(zapslog.NewHandler(m.core(name), m.handlerOptions(name)...))
	m.loggers[name] = l
	return l
}

func (m *Manager) core(name string) zapcore.Core {
	if !m.Enabled(name) {
		return zapcore.NewNopCore()
	}
	level := m.Level(name)
	cores := make([]zapcore.Core, 0, len(m.sinks))
	for _, sink := range m.sinks {
		cores = append(cores, zapcore.NewCore(m.encoder, sink, level))
	}
	return zapcore.NewTee(cores...)
}

func (m *Manager) handlerOptions(name string) []zapslog.HandlerOption {
	opts := []zapslog.HandlerOption{}
	if name != RootLogger {
		opts = append(opts, zapslog.WithName(name))
	}
	if m.cfg.LogTrace {
		opts = append(opts, zapslog.WithCaller(true), zapslog.AddStacktraceAt(slog.LevelError))
	}
	return opts
}

// Level returns the effective level of the named logger.
func (m *Manager) Level(name string) zapcore.Level {
	lc, ok := m.cfg.Loggers[name]
	if !ok || lc.Level == "" || name == RootLogger {
		return m.rootLevel
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return m.rootLevel
	}
	return level
}

// Enabled reports whether the named logger produces output.
func (m *Manager) Enabled(name string) bool {
	lc, ok := m.cfg.Loggers[name]
	return !ok || lc.IsEnabled()
}

// Trace reports whether log records carry caller and stack information.
func (m *Manager) Trace() bool {
	return m.cfg.LogTrace
}

// Names returns the configured logger names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.cfg.Loggers))
	for name := range m.cfg.Loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outputs returns the number of outputs the root logger writes to.
func (m *Manager) Outputs() int {
	return len(m.sinks)
}

// Close flushes and closes file outputs.
func (m *Manager) Close() error {
	for _, s := range m.sinks {
		_ = s.Sync()
	}
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// rotation rolls a lumberjack file over on a fixed interval until closed.
type rotation struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startRotation(lj *lumberjack.Logger, every time.Duration) *rotation {
	r := &rotation{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				if err := lj.Rotate(); err != nil {
					fmt.Fprintf(os.Stderr, "rotate %s: %v\n", lj.Filename, err)
				}
			}
		}
	}()
	return r
}

// Close stops the rotation. It is safe to call more than once.
func (r *rotation) Close() error {
	r.once.Do(func() { close(r.stop) })
	<-r.done
	return nil
}
