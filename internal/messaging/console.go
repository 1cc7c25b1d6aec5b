package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gradebook_service/pkg/logger"
)

// ConsoleMessenger logs messages instead of delivering them.
type ConsoleMessenger struct {
	renderer *Renderer
	logger   *logger.Logger

	mu   sync.Mutex
	sent []Message
}

func NewConsoleMessenger(renderer *Renderer, log *logger.Logger) *ConsoleMessenger {
	return &ConsoleMessenger{renderer: renderer, logger: log}
}

func (c *ConsoleMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := c.renderer.Render(address, templateID, data)
	if err != nil {
		return err
	}

	c.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)

	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *ConsoleMessenger) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
