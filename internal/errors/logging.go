package errors

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with structured error logging
type Logger struct {
	*logrus.Logger
}

// WrapLogger adapts an existing logrus logger.
func WrapLogger(logger *logrus.Logger) *Logger {
	return &Logger{Logger: logger}
}

// LogByKind logs not-found and validation errors at debug, retryable errors at
// warn and everything else at error.
func (l *Logger) LogByKind(err error, message string, fields ...logrus.Fields) {
	entry := l.entry(err, fields...)
	switch {
	case Is(err, KindNotFound), Is(err, KindValidation):
		entry.Debug(message)
	case IsRetryable(err):
		entry.Warn(message)
	default:
		entry.Error(message)
	}
}

func (l *Logger) entry(err error, fields ...logrus.Fields) *logrus.Entry {
	entry := l.Logger.WithError(err)

	if appErr, ok := As(err); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"error_kind": appErr.Kind.String(),
			"retryable":  appErr.Retryable,
		})

		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	for _, field := range fields {
		entry = entry.WithFields(field)
	}

	return entry
}
