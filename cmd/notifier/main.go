package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gradebook_service/internal/messaging"
	"gradebook_service/pkg/logger"
)

func main() {
	cfg, err := loadConfig("./config/.env")
	if err != nil {
		panic(fmt.Sprintf("cannot load config: %v", err))
	}

	log := logger.New(cfg.Env).ZapLogger
	defer func() { _ = log.Sync() }()

	renderer, err := messaging.NewRenderer(cfg.MailFromName)
	if err != nil {
		log.Fatal("Failed to load templates", zap.Error(err))
	}
	messenger := messaging.NewSMTPMessenger(messaging.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	}, renderer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("Starting notification consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	defer func() { _ = reader.Close() }()

	NewConsumer(reader, messenger, log, cfg.MaxAttempts, cfg.Backoff).Run(ctx)
}
