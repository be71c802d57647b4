// Package audit records (username, action, target) triples for every
// successful filesystem-affecting SFTP operation. It follows the shape of
// the reference server's tracing::Layer-based DatabaseLogger: one sink
// writes structured log lines, a second persists the same fields to the
// AuditLogs table. Here that is a logrus.Logger carrying a logrus.Hook
// (DatabaseHook) that writes to store.Store, instead of a tracing
// subscriber layer.
package audit

import (
	"github.com/sirupsen/logrus"

	"sftpbridge/internal/store"
)

// Auditor is what the SFTP session dispatcher calls after a request
// completes successfully. Implementations must not block the dispatcher
// for long; Logger below does a single synchronous insert, matching the
// reference design's per-event blocking pool checkout.
type Auditor interface {
	Record(username string, action store.Action, target string)
}

// Logger is the default Auditor: every record is both logged via logrus at
// info level and persisted to the AuditLogs table via DatabaseHook.
type Logger struct {
	log *logrus.Logger
	db  *store.Store
}

// New returns an Auditor that logs through log. Record never writes to db
// itself: rows reach AuditLogs only if log carries a DatabaseHook, which
// Wire attaches before calling New; the hook fires during Log's own
// dispatch.
func New(log *logrus.Logger, db *store.Store) *Logger {
	return &Logger{log: log, db: db}
}

// Record emits one structured log entry carrying username/action/target.
// The entry's fields are what DatabaseHook.Fire reads back out to persist
// the same triple to AuditLogs.
func (l *Logger) Record(username string, action store.Action, target string) {
	l.log.WithFields(logrus.Fields{
		"username": username,
		"action":   string(action),
		"target":   target,
	}).Info("audit")
}

// DatabaseHook is a logrus.Hook that persists audit-shaped log entries (the
// username/action/target fields Logger.Record attaches) into the
// AuditLogs table. Entries missing any of those three fields are ignored,
// mirroring the reference LogVisitor's is_valid check.
type DatabaseHook struct {
	db *store.Store
}

// NewDatabaseHook returns a hook that writes through db.
func NewDatabaseHook(db *store.Store) *DatabaseHook {
	return &DatabaseHook{db: db}
}

// Levels restricts the hook to info level, the level Logger.Record uses.
func (h *DatabaseHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel}
}

// Fire persists the entry's username/action/target fields. Persistence
// failures are not propagated to the caller — a lost audit row must not
// take down the SFTP session — but are reported back to the logger's own
// output so they are not silently swallowed.
func (h *DatabaseHook) Fire(entry *logrus.Entry) error {
	username, _ := entry.Data["username"].(string)
	action, _ := entry.Data["action"].(string)
	target, _ := entry.Data["target"].(string)
	if username == "" || action == "" || target == "" {
		return nil
	}
	if err := h.db.InsertAuditLog(username, store.Action(action), target); err != nil {
		entry.Logger.WithError(err).Error("failed to persist audit log")
	}
	return nil
}

// Wire constructs a ready-to-use Auditor backed by a fresh logrus.Logger
// with db's DatabaseHook attached.
func Wire(db *store.Store) *Logger {
	log := logrus.New()
	log.AddHook(NewDatabaseHook(db))
	return New(log, db)
}
