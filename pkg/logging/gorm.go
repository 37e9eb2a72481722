package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// SQLLogger is the logger GORM statements are written to.
const SQLLogger = "sql"

// slogWriter writes GORM output at the sql logger's own level, so gorm's
// level filter is the only one applied.
type slogWriter struct {
	logger *slog.Logger
	level  slog.Level
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Log(context.Background(), w.level, fmt.Sprintf(format, args...))
}

// GormLogger returns a GORM logger writing to the sql logger. Debug logs
// every statement, info and warn log slow statements and errors, error logs
// only errors.
func (m *Manager) GormLogger() gormlogger.Interface {
	level := gormlogger.Silent
	zl := m.Level(SQLLogger)
	if m.Enabled(SQLLogger) {
		level = gormLevel(zl)
	}
	w := slogWriter{logger: m.Logger(SQLLogger), level: slogLevel(zl)}
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func gormLevel(l zapcore.Level) gormlogger.LogLevel {
	switch {
	case l <= zapcore.DebugLevel:
		return gormlogger.Info
	case l <= zapcore.WarnLevel:
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func slogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
