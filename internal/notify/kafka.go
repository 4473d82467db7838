package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type kafkaEvent struct {
	Type       string   `json:"type"`
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

// KafkaNotifier publishes messages to the notifications topic consumed by the
// mailer. Writes are synchronous so the sweep can count delivery failures.
type KafkaNotifier struct {
	w *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	event := kafkaEvent{
		Type:       "email",
		Subject:    msg.Subject,
		Message:    msg.Body,
		Recipients: []string{msg.Recipient},
	}

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Recipient),
		Value: b,
	})
	if err != nil {
		return fmt.Errorf("Send: write: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	if err := n.w.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}
