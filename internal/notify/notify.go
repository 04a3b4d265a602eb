// Package notify delivers revision-created notifications.
//
// Notification is fire-and-forget: a delivery failure is logged and never
// rolls back or blocks the revision write that triggered it.
package notify

import (
	"time"

	"revisiond/internal/logging"
)

// Notifier receives one outbound call per created revision.
type Notifier interface {
	RevisionCreated(path, storedName string, createdAt time.Time) error
}

// LogNotifier writes notifications to the log. It is the fallback on
// platforms without desktop notifications and when the desktop bus is
// unreachable.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("notify")}
}

// RevisionCreated implements Notifier.
func (n *LogNotifier) RevisionCreated(path, storedName string, createdAt time.Time) error {
	n.log.Info("revision created", "path", path, "stored", storedName, "at", createdAt)
	return nil
}
