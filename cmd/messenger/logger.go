package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// consoleLogger writes glog records as slog text lines.
type consoleLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newConsoleLogger(w io.Writer, level string) *consoleLogger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &consoleLogger{logger: slog.New(handler), ctx: context.Background()}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *consoleLogger) Trace(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *consoleLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *consoleLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *consoleLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *consoleLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }
func (l *consoleLogger) Fatal(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *consoleLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &consoleLogger{logger: l.logger, ctx: ctx}
}

// namedProvider tags every record with the component name.
type namedProvider struct {
	base *consoleLogger
}

func (p namedProvider) GetLogger(name string) glog.Logger {
	return &consoleLogger{logger: p.base.logger.With("component", name), ctx: p.base.ctx}
}

var (
	_ glog.Logger         = (*consoleLogger)(nil)
	_ glog.LoggerProvider = namedProvider{}
)
