package audit

import (
	"context"
	"log"
)

// LogLogger writes audit entries to a *log.Logger. Used with the memory store.
type LogLogger struct {
	logger *log.Logger
}

// NewLogLogger constructs a LogLogger.
func NewLogLogger(logger *log.Logger) *LogLogger {
	return &LogLogger{logger: logger}
}

// Log implements Logger.
func (l *LogLogger) Log(_ context.Context, entry Entry) error {
	if l == nil || l.logger == nil {
		return nil
	}
	entry.fill()
	l.logger.Printf("audit: id=%s action=%s tenant=%s actor=%s role=%s resource=%s/%s session=%s digest=%s ip=%s",
		entry.ID, entry.Action, entry.TenantID, entry.Actor, entry.Role, entry.ResourceType, entry.ResourceID,
		entry.Session, entry.PayloadDigest, entry.IP)
	return nil
}
