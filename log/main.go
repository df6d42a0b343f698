package log

import (
	"io"
	"os"

	"github.com/netrixframework/smscsim/config"
	"github.com/sirupsen/logrus"
)

// DefaultLogger stores the instance of the DefaultLogger
var DefaultLogger *Logger

// LogParams wrapper around key values used for logging
type LogParams map[string]interface{}

// Logger for logging
type Logger struct {
	entry *logrus.Entry

	file *os.File
}

// NewLogger instantiates logger based on the config
func NewLogger(c config.LogConfig) *Logger {
	l := logrus.New()
	switch c.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger := &Logger{entry: logrus.NewEntry(l)}
	if c.Level != "" {
		logger.SetLevel(c.Level)
	}
	if c.Path != "" {
		f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Warn("Cannot open log file, logging to stderr")
			return logger
		}
		logger.file = f
		l.SetOutput(f)
	}
	return logger
}

// NewDiscardLogger returns a logger that drops everything, used in tests
func NewDiscardLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewWriterLogger returns a text logger writing to w at the given level
func NewWriterLogger(w io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	logger := &Logger{entry: logrus.NewEntry(l)}
	logger.SetLevel(level)
	return logger
}

// Debug logs a debug message
func (l *Logger) Debug(s string) {
	l.entry.Debug(s)
}

// Info logs a message with level `info`
func (l *Logger) Info(s string) {
	l.entry.Info(s)
}

// Warn logs a message with level `warning`
func (l *Logger) Warn(s string) {
	l.entry.Warn(s)
}

// Error logs a message with level `error`
func (l *Logger) Error(s string) {
	l.entry.Error(s)
}

// With returns a logger initialized with the parameters
func (l *Logger) With(params LogParams) *Logger {
	return &Logger{
		entry: l.entry.WithFields(logrus.Fields(params)),
		file:  nil,
	}
}

// WithError returns a logger carrying err under the `error` key
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		entry: l.entry.WithError(err),
		file:  nil,
	}
}

// SetLevel sets the level of the logger
func (l *Logger) SetLevel(level string) {
	levelL, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	l.entry.Logger.SetLevel(levelL)
}

// Destroy should be called when exiting to close the log file
func (l *Logger) Destroy() {
	if l.file != nil {
		l.file.Close()
	}
}

// Init initializes the default logger with a log path if specified
func Init(c config.LogConfig) *Logger {
	DefaultLogger = NewLogger(c)
	return DefaultLogger
}

// Destroy closes the log file
func Destroy() {
	if DefaultLogger != nil {
		DefaultLogger.Destroy()
	}
}
