package main

import (
	"errors"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env          string        `env:"APP_ENV" env-default:"development"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	Topic        string        `env:"KAFKA_NOTIFICATION_TOPIC" env-default:"gradebook.notifications"`
	GroupID      string        `env:"KAFKA_GROUP_ID" env-default:"gradebook-notifier-group"`
	SMTPHost     string        `env:"SMTP_HOST" env-default:"localhost"`
	SMTPPort     int           `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername string        `env:"SMTP_USERNAME"`
	SMTPPassword string        `env:"SMTP_PASSWORD"`
	MailFrom     string        `env:"MAIL_FROM" env-default:"noreply@gradebook.local"`
	MailFromName string        `env:"MAIL_FROM_NAME" env-default:"Gradebook"`
	MaxAttempts  int           `env:"NOTIFIER_MAX_ATTEMPTS" env-default:"3"`
	Backoff      time.Duration `env:"NOTIFIER_BACKOFF" env-default:"500ms"`
}

// loadConfig reads path when it exists and falls back to the environment.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := cleanenv.ReadEnv(&cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}
