package logutils

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log *Logger

// Logger keeps the WithError/WithField call style used across the service on top of a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

func init() {
	// Usable before InitLogger is called.
	Log = newLogger(logrus.InfoLevel)
}

func InitLogger(level string) {
	parsedLevel, err := parseLogLevel(level)
	if err != nil {
		parsedLevel = logrus.InfoLevel
	}
	Log = newLogger(parsedLevel)
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'", level)
	}
	Log.Debugf("Log level set to %v", parsedLevel)
}

func newLogger(level logrus.Level) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{entry: logrus.NewEntry(base)}
}

func parseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Level returns the active level name.
func (l *Logger) Level() string {
	return l.entry.Logger.GetLevel().String()
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

func (l *Logger) Debug(message string) { l.entry.Debug(message) }

func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

func (l *Logger) Info(message string) { l.entry.Info(message) }

func (l *Logger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

func (l *Logger) Warn(message string) { l.entry.Warn(message) }

func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *Logger) Error(message string) { l.entry.Error(message) }

func (l *Logger) Fatal(format string, args ...any) {
	l.entry.Fatalf(format, args...)
}
