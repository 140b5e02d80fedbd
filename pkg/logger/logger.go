package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Logger wraps logrus.Logger with domain field helpers
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// NewNop creates a logger that discards everything. Used in tests.
func NewNop() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: log}
}

// WithFields creates a new logger entry with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithComponent creates a new logger entry with a component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithRequestID creates a new logger entry with a request id field
func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.Logger.WithField("request_id", requestID)
}

// WithActor creates a new logger entry carrying the caller identity
func (l *Logger) WithActor(actor types.Actor) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
	})
}

// WithEntity creates a new logger entry for an entity record
func (l *Logger) WithEntity(entity types.EntityType, id string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"entity":    entity,
		"record_id": id,
	})
}

// CacheEvent logs a cache hit, miss or invalidation with its key context
func (l *Logger) CacheEvent(event string, entity types.EntityType, callerID string, details map[string]interface{}) {
	l.Logger.WithFields(logrus.Fields{
		"cache":     true,
		"event":     event,
		"entity":    entity,
		"caller_id": callerID,
		"details":   details,
	}).Debug("Cache event")
}

// AccessDenied logs a scope or role rejection
func (l *Logger) AccessDenied(actor types.Actor, entity types.EntityType, reason string) {
	l.Logger.WithFields(logrus.Fields{
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
		"entity":     entity,
		"reason":     reason,
	}).Warn("Access denied")
}
