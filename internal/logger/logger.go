package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
	LevelDebug Level = -1
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Buffer is a ring buffer for storing recent log messages
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	pos     int
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	b.mu.Unlock()
}

// Logger writes through zap and keeps the most recent entries in a ring buffer
// for the /api/logs endpoint. Named children share the parent's buffer.
type Logger struct {
	buffer *Buffer
	zap    *zap.SugaredLogger
	prefix string
}

// New creates a Logger at info level writing JSON to stderr
func New(bufferSize int) *Logger {
	l, err := NewWithLevel(bufferSize, "info")
	if err != nil {
		return NewWithZap(bufferSize, zap.NewNop())
	}
	return l
}

// NewWithLevel creates a Logger for the named level (debug, info, warn, error)
func NewWithLevel(bufferSize int, level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	encoder := zap.NewProductionEncoderConfig()
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.Lock(os.Stderr), lvl)
	return NewWithZap(bufferSize, zap.New(core)), nil
}

// NewWithZap creates a Logger on top of an existing zap logger
func NewWithZap(bufferSize int, z *zap.Logger) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Logger{
		buffer: &Buffer{
			entries: make([]Entry, bufferSize),
			size:    bufferSize,
		},
		zap: z.Sugar(),
	}
}

// Named returns a child logger whose messages are prefixed with [name]
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		buffer: l.buffer,
		zap:    l.zap.Named(name),
		prefix: l.prefix + "[" + name + "] ",
	}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if !l.zap.Desugar().Core().Enabled(level.zap()) {
		return
	}
	msg := l.prefix + fmt.Sprintf(format, args...)

	switch level {
	case LevelDebug:
		l.zap.Debug(msg)
	case LevelWarn:
		l.zap.Warn(msg)
	case LevelError:
		l.zap.Error(msg)
	default:
		l.zap.Info(msg)
	}

	l.buffer.add(Entry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05.000"),
		Level:     level.String(),
		Message:   msg,
	})
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Sync flushes the zap core
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetEntries returns all log entries in chronological order
func (l *Logger) GetEntries() []Entry {
	l.buffer.mu.RLock()
	defer l.buffer.mu.RUnlock()

	result := make([]Entry, 0, l.buffer.size)
	for i := 0; i < l.buffer.size; i++ {
		idx := (l.buffer.pos + i) % l.buffer.size
		if l.buffer.entries[idx].Timestamp != "" {
			result = append(result, l.buffer.entries[idx])
		}
	}
	return result
}
