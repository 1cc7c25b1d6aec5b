package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"gradebook_service/pkg/db"
)

type Config struct {
	Env          string             `yaml:"env"`
	GRPC         GRPCConfig         `yaml:"grpc"`
	HTTP         HTTPConfig         `yaml:"http"`
	DB           DBConfig           `yaml:"db"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Redis        RedisConfig        `yaml:"redis"`
	Mail         MailConfig         `yaml:"mail"`
	Notification NotificationConfig `yaml:"notification"`
	Probe        ProbeConfig        `yaml:"probe"`
	Status       StatusConfig       `yaml:"status"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	Driver         string `yaml:"driver"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"` //nolint:gosec // config struct, not hardcoded cred
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MigrationsPath string `yaml:"migrations_path"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
}

type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
	GroupID           string   `yaml:"group_id"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"` //nolint:gosec // config struct, not hardcoded cred
	DB       int    `yaml:"db"`
}

type MailConfig struct {
	Transport      string     `yaml:"transport"`
	From           string     `yaml:"from"`
	FromName       string     `yaml:"from_name"`
	SuppressSend   bool       `yaml:"suppress_send"`
	SMTP           SMTPConfig `yaml:"smtp"`
	SendGridAPIKey string     `yaml:"sendgrid_api_key"` //nolint:gosec // config struct, not hardcoded cred
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"` //nolint:gosec // config struct, not hardcoded cred
}

type NotificationConfig struct {
	SendTimeout time.Duration   `yaml:"send_timeout"`
	MaxAttempts int             `yaml:"max_attempts"`
	Backoff     time.Duration   `yaml:"backoff"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Retry       RetryConfig     `yaml:"retry"`
	Breaker     BreakerConfig   `yaml:"breaker"`
}

type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

type RateLimitConfig struct {
	PerRecipient    int           `yaml:"per_recipient"`
	Window          time.Duration `yaml:"window"`
	GlobalPerSecond float64       `yaml:"global_per_second"`
	GlobalBurst     int           `yaml:"global_burst"`
}

type RetryConfig struct {
	Interval         time.Duration `yaml:"interval"`
	MaxTotalAttempts int           `yaml:"max_total_attempts"`
	BatchSize        int           `yaml:"batch_size"`
	// ClaimTimeout is how long an event may stay PENDING before a retry
	// pass takes it over from whoever claimed it.
	ClaimTimeout time.Duration `yaml:"claim_timeout"`
}

type ProbeConfig struct {
	NetworkHost string        `yaml:"network_host"`
	Timeout     time.Duration `yaml:"timeout"`
}

type StatusConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	TransportConsole  = "console"
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
	TransportKafka    = "kafka"
)

func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath) //nolint:gosec // config path from env/flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func getConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	possiblePaths := []string{
		"config/config.yaml",
		"/etc/gradebook-service/config.yaml",
		"./config.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "config.yaml"
}

func setDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}

	if cfg.DB.Driver == "" {
		cfg.DB.Driver = DriverPostgres
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}

	if cfg.Kafka.NotificationTopic == "" {
		cfg.Kafka.NotificationTopic = "gradebook.notifications"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "gradebook-notifier-group"
	}

	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = TransportConsole
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}

	n := &cfg.Notification
	if n.SendTimeout == 0 {
		n.SendTimeout = 5 * time.Second
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = 3
	}
	if n.Backoff == 0 {
		n.Backoff = 200 * time.Millisecond
	}
	if n.RateLimit.PerRecipient == 0 {
		n.RateLimit.PerRecipient = 5
	}
	if n.RateLimit.Window == 0 {
		n.RateLimit.Window = time.Hour
	}
	if n.RateLimit.GlobalPerSecond == 0 {
		n.RateLimit.GlobalPerSecond = 20
	}
	if n.RateLimit.GlobalBurst == 0 {
		n.RateLimit.GlobalBurst = 40
	}
	if n.Retry.Interval == 0 {
		n.Retry.Interval = time.Minute
	}
	if n.Retry.MaxTotalAttempts == 0 {
		n.Retry.MaxTotalAttempts = 6
	}
	if n.Retry.BatchSize == 0 {
		n.Retry.BatchSize = 50
	}
	if n.Retry.ClaimTimeout == 0 {
		n.Retry.ClaimTimeout = 10 * time.Minute
	}
	if n.Breaker.Threshold == 0 {
		n.Breaker.Threshold = 5
	}
	if n.Breaker.ResetTimeout == 0 {
		n.Breaker.ResetTimeout = 30 * time.Second
	}

	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 2 * time.Second
	}

	if cfg.Status.CacheTTL == 0 {
		cfg.Status.CacheTTL = 10 * time.Minute
	}
	if cfg.Status.WatchInterval == 0 {
		cfg.Status.WatchInterval = 10 * time.Second
	}
}

func overrideFromEnv(cfg *Config) {
	if val := os.Getenv("APP_ENV"); val != "" {
		cfg.Env = val
	}

	if val := os.Getenv("GRPC_ADDRESS"); val != "" {
		cfg.GRPC.Address = val
	}
	if val := os.Getenv("HTTP_ADDRESS"); val != "" {
		cfg.HTTP.Address = val
	}

	if val := os.Getenv("DB_DRIVER"); val != "" {
		cfg.DB.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		cfg.DB.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.DB.Port = port
		}
	}
	if val := os.Getenv("DB_USER"); val != "" {
		cfg.DB.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		cfg.DB.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		cfg.DB.DBName = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		cfg.DB.SSLMode = val
	}
	if val := os.Getenv("DB_MIGRATIONS_PATH"); val != "" {
		cfg.DB.MigrationsPath = val
	}

	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		cfg.Kafka.Brokers = strings.Split(val, ",")
	}
	if val := os.Getenv("KAFKA_NOTIFICATION_TOPIC"); val != "" {
		cfg.Kafka.NotificationTopic = val
	}

	if val := os.Getenv("REDIS_ADDRESS"); val != "" {
		cfg.Redis.Address = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}

	if val := os.Getenv("MAIL_TRANSPORT"); val != "" {
		cfg.Mail.Transport = val
	}
	if val := os.Getenv("MAIL_FROM"); val != "" {
		cfg.Mail.From = val
	}
	if val := os.Getenv("MAIL_SUPPRESS_SEND"); val != "" {
		if suppress, err := strconv.ParseBool(val); err == nil {
			cfg.Mail.SuppressSend = suppress
		}
	}
	if val := os.Getenv("SMTP_HOST"); val != "" {
		cfg.Mail.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Mail.SMTP.Port = port
		}
	}
	if val := os.Getenv("SMTP_USERNAME"); val != "" {
		cfg.Mail.SMTP.Username = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		cfg.Mail.SMTP.Password = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		cfg.Mail.SendGridAPIKey = val
	}

	if val := os.Getenv("NOTIFICATION_SEND_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			cfg.Notification.SendTimeout = timeout
		}
	}
	if val := os.Getenv("PROBE_NETWORK_HOST"); val != "" {
		cfg.Probe.NetworkHost = val
	}
}

func validateConfig(cfg *Config) error {
	if cfg.GRPC.Address == "" {
		return fmt.Errorf("GRPC address must be set")
	}

	switch cfg.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.DBName == "" {
			return fmt.Errorf("database configuration is incomplete")
		}
	default:
		return fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}

	switch cfg.Mail.Transport {
	case TransportConsole:
	case TransportSMTP:
		if cfg.Mail.SMTP.Host == "" {
			return fmt.Errorf("smtp host must be set for smtp transport")
		}
	case TransportSendGrid:
		if cfg.Mail.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid api key must be set for sendgrid transport")
		}
	case TransportKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one Kafka broker must be specified")
		}
	default:
		return fmt.Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}

	if cfg.Mail.Transport != TransportConsole && cfg.Mail.From == "" {
		return fmt.Errorf("mail from address must be set")
	}

	n := cfg.Notification
	if n.MaxAttempts < 1 || n.MaxAttempts > 3 {
		return fmt.Errorf("notification max_attempts must be between 1 and 3")
	}
	if n.RateLimit.PerRecipient < 1 {
		return fmt.Errorf("notification rate_limit.per_recipient must be positive")
	}
	if n.Retry.MaxTotalAttempts < n.MaxAttempts {
		return fmt.Errorf("notification retry.max_total_attempts must be at least max_attempts")
	}
	if n.Retry.ClaimTimeout <= n.SendTimeout {
		return fmt.Errorf("notification retry.claim_timeout must exceed send_timeout")
	}

	return nil
}

func (c *Config) Postgres() db.Config {
	return db.Config{
		Host:           c.DB.Host,
		Port:           c.DB.Port,
		User:           c.DB.User,
		Password:       c.DB.Password,
		DBName:         c.DB.DBName,
		SSLMode:        c.DB.SSLMode,
		MigrationsPath: c.DB.MigrationsPath,
		MaxOpenConns:   c.DB.MaxOpenConns,
		ConnectTimeout: c.Probe.Timeout,
	}
}
