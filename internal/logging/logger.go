package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger writes leveled key=value lines for the worker and the dashboard
type Logger struct {
	prefix string
	fields []interface{}
	logger *log.Logger
}

// NewLogger creates a stdout logger with a prefix
func NewLogger(prefix string) *Logger {
	return NewLoggerTo(prefix, os.Stdout)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(prefix string, w io.Writer) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// With returns a logger that appends the given pairs to every line
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{prefix: l.prefix, fields: fields, logger: l.logger}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	writeKV(&b, l.fields)
	writeKV(&b, keysAndValues)
	l.logger.Printf("[%s] %s%s", level, msg, b.String())
}

func writeKV(b *strings.Builder, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(b, " %v=%v", kv[i], kv[i+1])
	}
}

// AsynqLogger adapts Logger to the asynq.Logger interface
type AsynqLogger struct {
	L *Logger
}

func (a AsynqLogger) Debug(args ...interface{}) { a.L.Debug(fmt.Sprint(args...)) }
func (a AsynqLogger) Info(args ...interface{})  { a.L.Info(fmt.Sprint(args...)) }
func (a AsynqLogger) Warn(args ...interface{})  { a.L.Warn(fmt.Sprint(args...)) }
func (a AsynqLogger) Error(args ...interface{}) { a.L.Error(fmt.Sprint(args...)) }

// Fatal logs at error level and exits
func (a AsynqLogger) Fatal(args ...interface{}) {
	a.L.Error(fmt.Sprint(args...))
	os.Exit(1)
}
