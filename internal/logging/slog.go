package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nymstr/nymstr-groupd/internal/filex"
)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// NewFileLogger builds a JSON slog logger writing to both the given log file
// and stdout. The log directory is created if missing; the returned closer
// owns the file handle.
func NewFileLogger(logFilePath string) (*SlogLogger, io.Closer, error) {
	if err := filex.EnsureParentDir(logFilePath); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logFilePath, err)
	}

	h := slog.NewJSONHandler(io.MultiWriter(os.Stdout, f), nil)
	return NewSlogLogger(slog.New(h)), f, nil
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
