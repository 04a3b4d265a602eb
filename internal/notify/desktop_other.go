//go:build !linux

package notify

import (
	"errors"
	"time"
)

// ErrUnsupported is returned where desktop notifications are unavailable.
var ErrUnsupported = errors.New("desktop notifications are not supported on this platform")

// DesktopNotifier is unavailable on this platform.
type DesktopNotifier struct{}

// NewDesktopNotifier always fails; callers fall back to LogNotifier.
func NewDesktopNotifier() (*DesktopNotifier, error) {
	return nil, ErrUnsupported
}

// RevisionCreated implements Notifier.
func (n *DesktopNotifier) RevisionCreated(path, storedName string, createdAt time.Time) error {
	return ErrUnsupported
}

// Close implements io.Closer.
func (n *DesktopNotifier) Close() error { return nil }
