package notification

import (
	"context"
	"log/slog"
	"time"
)

// Event describes a committed money movement.
type Event struct {
	Kind       string    `json:"kind"`
	Reference  string    `json:"reference"`
	Amount     string    `json:"amount"`
	Sender     int64     `json:"sender"`
	Receiver   int64     `json:"receiver"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers transaction events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger. Used when no broker
// is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("transaction event",
		slog.String("kind", event.Kind),
		slog.String("reference", event.Reference),
		slog.String("amount", event.Amount),
		slog.Int64("sender", event.Sender),
		slog.Int64("receiver", event.Receiver),
	)
	return nil
}
