// Package notifier delivers alert messages to push endpoints
package notifier

import (
	"context"
	"fmt"
)

// Notifier sends one message. Implementations make a single bounded
// attempt and never retry internally.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// NotifyError is a failed delivery. StatusCode is zero when no response was received.
type NotifyError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *NotifyError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notification rejected with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to send notification: %v", e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
