// Package notify carries messages to the external notification collaborator.
// Delivery is best-effort: callers report failures but never roll back the
// billing state that triggered the message.
package notify

import (
	"context"
	"log/slog"
)

type Message struct {
	Recipient string
	Subject   string
	Body      string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of a transport. Used in
// development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification dispatched",
		"recipient", msg.Recipient,
		"subject", msg.Subject,
	)
	return nil
}
