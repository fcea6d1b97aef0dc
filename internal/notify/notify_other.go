//go:build !linux

package notify

import "errors"

// ErrUnsupported is returned where no notification transport exists.
var ErrUnsupported = errors.New("notify: not supported on this platform")

// Notifier is a no-op placeholder on platforms without a session bus.
type Notifier struct{}

// New always fails; callers treat notifications as best effort.
func New() (*Notifier, error) {
	return nil, ErrUnsupported
}

func (n *Notifier) Send(summary, body string) error {
	return ErrUnsupported
}

func (n *Notifier) Close() error {
	return nil
}
