//go:build linux

package notify

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications.Notify"
)

// DesktopNotifier posts desktop notifications over the session bus.
type DesktopNotifier struct {
	conn *dbus.Conn
}

// NewDesktopNotifier connects to the session bus. Returns an error when no
// session bus is available (headless systems); callers fall back to
// LogNotifier.
func NewDesktopNotifier() (*DesktopNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DesktopNotifier{conn: conn}, nil
}

// RevisionCreated implements Notifier.
func (n *DesktopNotifier) RevisionCreated(path, storedName string, createdAt time.Time) error {
	summary := "Revision created"
	body := fmt.Sprintf("%s → %s", filepath.Base(path), storedName)

	obj := n.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyInterface, 0,
		"revisiond",             // app name
		uint32(0),               // replaces id
		"document-save",         // icon
		summary,                 // summary
		body,                    // body
		[]string{},              // actions
		map[string]dbus.Variant{}, // hints
		int32(5000),             // timeout ms
	)
	if call.Err != nil {
		return fmt.Errorf("post notification: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (n *DesktopNotifier) Close() error {
	return n.conn.Close()
}
