package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gradebook_service/internal/messaging"
	"gradebook_service/pkg/retry"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer delivers queued notification requests. Every fetched message is
// committed once handled, delivered or not; failures are logged.
type Consumer struct {
	reader      messageReader
	messenger   messaging.Messenger
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(reader messageReader, messenger messaging.Messenger, logger *zap.Logger, maxAttempts int, backoff time.Duration) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Consumer{
		reader:      reader,
		messenger:   messenger,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer shutting down")
				return
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var req messaging.NotificationRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.logger.Warn("Failed to unmarshal notification request",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	_, err := retry.WithBackoff(ctx, c.maxAttempts, c.backoff, messaging.TransportFailure,
		func(int) (struct{}, error) {
			return struct{}{}, c.messenger.Send(ctx, req.Address, req.TemplateID, req.Data)
		})

	fields := []zap.Field{
		zap.String("request_id", req.ID),
		zap.String("template_id", req.TemplateID),
		zap.String("address", req.Address),
		zap.Duration("queued_for", time.Since(req.RequestedAt)),
	}
	switch {
	case err == nil:
		c.logger.Info("Notification delivered", fields...)
	case messaging.IsRejected(err):
		c.logger.Warn("Notification rejected", append(fields, zap.Error(err))...)
	default:
		c.logger.Error("Notification delivery failed", append(fields, zap.Error(err))...)
	}
}
