/*
Package logging wraps logrus behind a small interface so that components
receive an owned Logger instead of reaching for a global.

	log := logging.NewLogger()
	log.With("replica", "r0").Infof("replayed %d records", n)
*/
package logging

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Level refers to the log logging level
type Level uint32

const (
	// Panic logs and then panics.
	Panic Level = iota
	// Fatal logs and then calls os.Exit(1).
	Fatal
	// Error is for failures that need attention.
	Error
	// Warn is for non-critical entries that deserve eyes.
	Warn
	// Info is for general operational entries.
	Info
	// Debug is very verbose.
	Debug
)

// Fields maps logrus fields
type Fields = logrus.Fields

// Logger is the interface for loggers.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
	Fatalf(string, ...interface{})

	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})

	// With adds one key-value pair to every subsequent entry.
	With(key string, value interface{}) Logger
	// WithFields adds several key-value pairs.
	WithFields(Fields) Logger

	SetLevel(Level)
	SetOutput(io.Writer)
	SetJSONFormatter()
}

type logger struct {
	entry *logrus.Entry
}

var (
	baseLogger Logger
	once       sync.Once
)

// Init initialises the base logger; it is safe to call more than once.
func Init() {
	once.Do(func() {
		baseLogger = NewLogger()
		baseLogger.SetLevel(Info)
	})
}

func init() {
	Init()
}

// Base returns the process logger, used only by commands before an owned logger exists.
func Base() Logger {
	return baseLogger
}

// NewLogger returns a logger writing text to stderr at Info level.
func NewLogger() Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger{entry: logrus.NewEntry(l)}
}

// ParseLevel maps a config string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info", "":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	case "fatal":
		return Fatal, nil
	case "panic":
		return Panic, nil
	}
	return Info, errors.Errorf("unknown log level %q", s)
}

func (l logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l logger) With(key string, value interface{}) Logger {
	return logger{entry: l.entry.WithField(key, value)}
}

func (l logger) WithFields(fields Fields) Logger {
	return logger{entry: l.entry.WithFields(fields)}
}

func (l logger) SetLevel(lvl Level) {
	l.entry.Logger.SetLevel(logrus.Level(lvl))
}

func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l logger) SetJSONFormatter() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
}

// TestingLog returns a logger that writes through t.Logf.
func TestingLog(tb interface{ Logf(string, ...interface{}) }) Logger {
	l := NewLogger()
	l.SetOutput(testWriter{tb})
	l.SetLevel(Debug)
	return l
}

type testWriter struct {
	tb interface{ Logf(string, ...interface{}) }
}

func (w testWriter) Write(p []byte) (int, error) {
	w.tb.Logf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
