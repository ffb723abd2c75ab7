// Package notifier defines the port for pushing review notifications to
// chat channels outside the reviewer UI.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier has no destination.
var ErrNotConfigured = errors.New("notifier: not configured")

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification tells reviewers about a run of one tenant.
type Notification struct {
	Event    string `json:"event"` // broadcast event type, e.g. "review.pending"
	TenantID string `json:"tenant_id"`
	RunID    string `json:"run_id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Level    Level  `json:"level"`
}

// Notifier delivers notifications to one channel.
type Notifier interface {
	// Name returns the provider name, e.g. "slack".
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, n Notification) error
}
