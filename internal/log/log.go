// Package log provides the structured logger shared by every Agni component.
package log

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a set of structured key/value pairs attached to a log line.
type Fields = logrus.Fields

// Config controls logger output.
type Config struct {
	// Level is a logrus level name ("debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// File, when set, receives a rotated copy of every log line.
	File string `yaml:"file"`
	// NoColors disables ANSI colors on stderr.
	NoColors bool `yaml:"no_colors"`
}

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(newFormatter(false))
	return l
}

func newFormatter(noColors bool) logrus.Formatter {
	return &formatter.Formatter{
		NoColors:        noColors,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	}
}

// Init replaces the package logger according to cfg and returns it.
func Init(cfg Config) (*logrus.Logger, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(newFormatter(cfg.NoColors))
	l.SetReportCaller(true)

	writers := []io.Writer{os.Stderr}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    20,
			MaxAge:     14,
			MaxBackups: 3,
		})
	}
	l.SetOutput(io.MultiWriter(writers...))

	mu.Lock()
	logger = l
	mu.Unlock()

	return l, nil
}

// Logger returns the current package logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput redirects the package logger, mainly for tests.
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return Logger().WithFields(fields)
}

func Debug(fields Fields, msg string) {
	entry(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	entry(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	entry(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	entry(fields).Error(msg)
}

// Component returns an entry tagged with a component name.
func Component(name string) *logrus.Entry {
	return Logger().WithField("component", name)
}
