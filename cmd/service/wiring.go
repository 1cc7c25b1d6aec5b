package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"gradebook_service/config"
	"gradebook_service/internal/messaging"
	"gradebook_service/internal/probe"
	"gradebook_service/internal/ratelimit"
	"gradebook_service/internal/repository"
	"gradebook_service/internal/repository/memory"
	"gradebook_service/internal/service"
	"gradebook_service/pkg/cache"
	"gradebook_service/pkg/db"
	"gradebook_service/pkg/kafka"
	"gradebook_service/pkg/logger"
	"gradebook_service/pkg/retry"
)

type storage struct {
	assignments   service.AssignmentStore
	records       service.CompletionStore
	directory     service.Directory
	notifications service.NotificationStore
	inbox         service.InboxStore
	pinger        probe.Pinger
	close         func() error
}

func newStorage(cfg *config.Config) (*storage, error) {
	switch cfg.DB.Driver {
	case config.DriverMemory:
		store := memory.New()
		return &storage{
			assignments:   store,
			records:       store,
			directory:     store,
			notifications: store,
			inbox:         store,
			pinger:        store,
			close:         func() error { return nil },
		}, nil
	case config.DriverPostgres:
		pg, err := db.NewPostgres(cfg.Postgres())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		assignments := repository.NewAssignmentRepository(pg.DB())
		return &storage{
			assignments:   assignments,
			records:       assignments,
			directory:     repository.NewDirectoryRepository(pg.DB()),
			notifications: repository.NewNotificationRepository(pg.DB()),
			inbox:         repository.NewInboxRepository(pg.DB()),
			pinger:        pg.DB(),
			close:         pg.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

// newMessenger builds the configured transport behind a circuit breaker. The
// returned close func releases the transport's resources.
func newMessenger(cfg *config.Config, log *logger.Logger) (messaging.Messenger, func() error, error) {
	renderer, err := messaging.NewRenderer(cfg.Mail.FromName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}

	closeFn := func() error { return nil }
	var m messaging.Messenger
	switch cfg.Mail.Transport {
	case config.TransportConsole:
		m = messaging.NewConsoleMessenger(renderer, log)
	case config.TransportSMTP:
		m = messaging.NewSMTPMessenger(messaging.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		}, renderer)
	case config.TransportSendGrid:
		m = messaging.NewSendGridMessenger(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.From, renderer)
	case config.TransportKafka:
		producer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		closeFn = producer.Close
		m = messaging.NewKafkaMessenger(producer, cfg.Kafka.NotificationTopic, renderer)
	default:
		return nil, nil, fmt.Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}

	breaker := retry.NewCircuitBreaker(
		cfg.Notification.Breaker.Threshold,
		cfg.Notification.Breaker.ResetTimeout,
		messaging.TransportFailure,
	)
	return messaging.NewBreakerMessenger(m, breaker), closeFn, nil
}

// limits holds the per-recipient limiter and the snapshot cache, both backed
// by Redis when it is configured and kept in process otherwise.
type limits struct {
	perRecipient ratelimit.Limiter
	window       *ratelimit.MemoryWindow
	snapshots    cache.Cache
	close        func() error
}

func newLimits(cfg *config.Config) *limits {
	rl := cfg.Notification.RateLimit
	if cfg.Redis.Address == "" {
		window := ratelimit.NewMemoryWindow(rl.PerRecipient, rl.Window)
		return &limits{
			perRecipient: window,
			window:       window,
			snapshots:    cache.NewMemoryCache(),
			close:        func() error { return nil },
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &limits{
		perRecipient: ratelimit.NewRedisWindow(rdb, rl.PerRecipient, rl.Window),
		snapshots:    cache.NewRedisCache(rdb),
		close:        rdb.Close,
	}
}
