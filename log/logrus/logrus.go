package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/appcache"
)

var _ appcache.Logger = LogrusLogger{}

// LogrusLogger adapts a logrus entry. An "err" field holding an error is
// attached with WithError so hooks and formatters see it as logrus.ErrorKey.
type LogrusLogger struct{ E *logrus.Entry }

// New wraps l with a "component" field set to "appcache".
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "appcache")}
}

func (l LogrusLogger) Debug(msg string, f appcache.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f appcache.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f appcache.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f appcache.Fields) { l.entry(f).Error(msg) }

func (l LogrusLogger) entry(f appcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			fields[logrus.ErrorKey] = err
			continue
		}
		fields[k] = v
	}
	return l.E.WithFields(fields)
}
