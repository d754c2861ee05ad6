// Package logger configures the process-wide slog logger with colored,
// asynchronously written output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LevelFatal is logged for unrecoverable startup failures.
const LevelFatal slog.Level = 12

// AsyncHandler is a slog.Handler that formats records as colored single lines
// and hands them to a background writer goroutine so logging never blocks the
// caller on I/O.
type AsyncHandler struct {
	ch       chan []byte
	writer   io.Writer
	attrs    []slog.Attr
	logLevel slog.Level
	wg       sync.WaitGroup
	once     sync.Once
}

// NewAsyncHandler creates a handler writing to w at the given minimum level
// and starts its writer goroutine.
func NewAsyncHandler(w io.Writer, logLevel slog.Level) *AsyncHandler {
	h := &AsyncHandler{
		ch:       make(chan []byte, 1024),
		writer:   w,
		logLevel: logLevel,
	}
	h.wg.Add(1)
	go h.startWorker()
	return h
}

func (h *AsyncHandler) startWorker() {
	defer h.wg.Done()
	for data := range h.ch {
		_, _ = h.writer.Write(data)
	}
}

// Enabled reports whether records at the given level are logged.
func (h *AsyncHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

// Handle formats a record as "time | LEVEL | message key=value ..." with
// level-dependent coloring.
func (h *AsyncHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	case LevelFatal:
		level = color.HiRedString("FATAL")
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format(time.RFC3339)),
		level,
		color.CyanString(r.Message),
	)

	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
	}

	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
		return true
	})

	line += "\n"

	h.write([]byte(line))
	return nil
}

// WithAttrs returns a handler that includes attrs on every record. The new
// handler shares the writer goroutine of the receiver.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	return &sharedHandler{parent: h, attrs: merged}
}

// WithGroup is accepted but flattened; attribute keys are not prefixed.
func (h *AsyncHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *AsyncHandler) write(p []byte) {
	// Copy so the record buffer cannot be reused under the worker.
	pb := make([]byte, len(p))
	copy(pb, p)
	select {
	case h.ch <- pb:
	default:
		// Queue full; drop rather than block the caller.
	}
}

// Close stops the writer goroutine after draining queued lines.
func (h *AsyncHandler) Close() error {
	h.once.Do(func() {
		close(h.ch)
	})
	h.wg.Wait()
	if f, ok := h.writer.(*os.File); ok {
		_ = f.Sync()
	}
	return nil
}

// sharedHandler carries extra attrs while delegating queueing to its parent.
type sharedHandler struct {
	parent *AsyncHandler
	attrs  []slog.Attr
}

func (s *sharedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.parent.Enabled(ctx, level)
}

func (s *sharedHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, attr := range s.attrs {
		r.AddAttrs(attr)
	}
	return s.parent.Handle(ctx, r)
}

func (s *sharedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	merged = append(merged, s.attrs...)
	merged = append(merged, attrs...)
	return &sharedHandler{parent: s.parent, attrs: merged}
}

func (s *sharedHandler) WithGroup(string) slog.Handler {
	return s
}

// Init installs an AsyncHandler as the default slog logger. The returned
// handler must be closed on shutdown to flush pending lines.
func Init(debug bool) *AsyncHandler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := NewAsyncHandler(os.Stdout, level)
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logger initialized")
	return handler
}

func Debug(msg string, v ...interface{}) {
	slog.Debug(msg, v...)
}

func DebugF(msg string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(msg, v...))
}

func Info(msg string, v ...interface{}) {
	slog.Info(msg, v...)
}

func InfoF(msg string, v ...interface{}) {
	slog.Info(fmt.Sprintf(msg, v...))
}

func Warn(msg string, v ...interface{}) {
	slog.Warn(msg, v...)
}

func WarnF(msg string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(msg, v...))
}

func Error(msg string, v ...interface{}) {
	slog.Error(msg, v...)
}

func ErrorF(msg string, v ...interface{}) {
	slog.Error(fmt.Sprintf(msg, v...))
}

func Fatal(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelFatal, msg, v...)
}

func FatalF(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelFatal, fmt.Sprintf(msg, v...))
}
