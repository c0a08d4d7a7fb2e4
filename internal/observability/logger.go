package observability

import "github.com/sirupsen/logrus"

// Logger is the logging capability services depend on. Keeping it an
// interface lets tests pass a real logger without asserting on output and
// keeps logrus out of package signatures.
type Logger interface {
	Info(args ...any)
	Error(args ...any)
	Debug(args ...any)
	Warn(args ...any)
	WithField(key string, value any) Logger
}

type entryLogger struct {
	entry *logrus.Entry
}

// NewLogger returns a JSON-formatted logrus logger. Fields added with
// WithField accumulate on the returned Logger, the receiver is unchanged.
func NewLogger() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	return &entryLogger{entry: logrus.NewEntry(l)}
}

func (l *entryLogger) Info(args ...any)  { l.entry.Info(args...) }
func (l *entryLogger) Error(args ...any) { l.entry.Error(args...) }
func (l *entryLogger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *entryLogger) Warn(args ...any)  { l.entry.Warn(args...) }

func (l *entryLogger) WithField(key string, value any) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value)}
}
