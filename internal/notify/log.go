package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the default logger. It is used when no
// webhook is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the notification.
func (LogNotifier) Send(ctx context.Context, notification Notification) error {
	slog.Warn("notification",
		"subject", notification.Subject,
		"body", notification.Body,
	)
	return nil
}
