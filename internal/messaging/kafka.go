package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Publisher interface {
	Send(ctx context.Context, topic, key string, message interface{}) error
}

// KafkaMessenger queues requests for the notifier process. Acceptance means
// the broker stored the request.
type KafkaMessenger struct {
	producer Publisher
	topic    string
	renderer *Renderer
}

func NewKafkaMessenger(producer Publisher, topic string, renderer *Renderer) *KafkaMessenger {
	return &KafkaMessenger{producer: producer, topic: topic, renderer: renderer}
}

func (k *KafkaMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	// Render locally so unknown templates fail here rather than in the notifier.
	if _, err := k.renderer.Render(address, templateID, data); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	req := NotificationRequest{
		ID:          id.String(),
		Address:     address,
		TemplateID:  templateID,
		Data:        data,
		RequestedAt: time.Now().UTC(),
	}

	if err := k.producer.Send(ctx, k.topic, address, req); err != nil {
		return fmt.Errorf("publishing notification request: %w", err)
	}
	return nil
}
