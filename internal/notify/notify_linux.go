//go:build linux

// Package notify raises a desktop notification when a flip is detected.
// Strictly best effort: a headless machine has no session bus and the
// daemon must keep running without one.
package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Notifier sends notifications over the session bus using the
// org.freedesktop.Notifications interface.
type Notifier struct {
	conn *dbus.Conn
}

// New connects to the session bus.
func New() (*Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Notifier{conn: conn}, nil
}

// Send raises a notification with the given summary and body.
func (n *Notifier) Send(summary, body string) error {
	obj := n.conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		"bitflipd",              // app name
		uint32(0),               // no notification to replace
		"",                      // no icon
		summary,                 // summary
		body,                    // body
		[]string{},              // no actions
		map[string]dbus.Variant{}, // no hints
		int32(-1),               // default expiry
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

// Close disconnects from the session bus.
func (n *Notifier) Close() error {
	return n.conn.Close()
}
