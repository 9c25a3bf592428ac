package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr      string `env:"RT_ADDR" envDefault:":3100"`
	AdminAddr string `env:"RT_ADMIN_ADDR" envDefault:":3101"`

	// External collaborators
	NATSUrl     string `env:"NATS_URL" envDefault:""`
	PostgresURL string `env:"POSTGRES_URL" envDefault:""`

	// Stream lifecycle bus. With no brokers configured, lifecycle
	// transitions arrive only through the admin API.
	KafkaBrokers        string `env:"RT_KAFKA_BROKERS" envDefault:""`
	KafkaLifecycleTopic string `env:"RT_KAFKA_LIFECYCLE_TOPIC" envDefault:"live.stream.lifecycle"`
	KafkaConsumerGroup  string `env:"RT_KAFKA_CONSUMER_GROUP" envDefault:"realtime-gateway"`

	// Identity
	JWTSecret      string `env:"RT_JWT_SECRET" envDefault:""`
	AllowAnonymous bool   `env:"RT_ALLOW_ANONYMOUS" envDefault:"true"`

	// Admin surface. Requests without this bearer token are rejected; an
	// empty value disables the mutating admin endpoints entirely.
	AdminToken string `env:"RT_ADMIN_TOKEN" envDefault:""`

	// Capacity. Zero means auto-size from the container memory limit.
	MaxConnections int `env:"RT_MAX_CONNECTIONS" envDefault:"0"`

	// Connection attempt rate limiting (token bucket, per-IP and global)
	ConnRateLimitEnabled     bool    `env:"RT_CONN_RATE_LIMIT_ENABLED" envDefault:"true"`
	ConnRateLimitIPBurst     int     `env:"RT_CONN_RATE_LIMIT_IP_BURST" envDefault:"10"`
	ConnRateLimitIPRate      float64 `env:"RT_CONN_RATE_LIMIT_IP_RATE" envDefault:"1.0"`
	ConnRateLimitGlobalBurst int     `env:"RT_CONN_RATE_LIMIT_GLOBAL_BURST" envDefault:"300"`
	ConnRateLimitGlobalRate  float64 `env:"RT_CONN_RATE_LIMIT_GLOBAL_RATE" envDefault:"50.0"`

	// Security monitor
	MaxAuthAttempts              int           `env:"RT_MAX_AUTH_ATTEMPTS" envDefault:"5"`
	AuthWindow                   time.Duration `env:"RT_AUTH_WINDOW" envDefault:"15m"`
	MaxChatEventsPerMinute       int           `env:"RT_MAX_CHAT_EVENTS_PER_MIN" envDefault:"300"`
	MaxAPIRequestsPerMinute      int           `env:"RT_MAX_API_REQUESTS_PER_MIN" envDefault:"120"`
	MaxSearchRequestsPerMinute   int           `env:"RT_MAX_SEARCH_REQUESTS_PER_MIN" envDefault:"30"`
	MaxUploadRequestsPerMinute   int           `env:"RT_MAX_UPLOAD_REQUESTS_PER_MIN" envDefault:"20"`
	BlockAfterViolations         int           `env:"RT_BLOCK_AFTER_VIOLATIONS" envDefault:"10"`
	ViolationBlockTTL            time.Duration `env:"RT_VIOLATION_BLOCK_TTL" envDefault:"1h"`
	BlockSuspiciousIPs           bool          `env:"RT_BLOCK_SUSPICIOUS_IPS" envDefault:"true"`
	SuspiciousActivityThreshold  int           `env:"RT_SUSPICIOUS_ACTIVITY_THRESHOLD" envDefault:"20"`
	AuditRetention               time.Duration `env:"RT_AUDIT_RETENTION" envDefault:"168h"`
	AuditMaxEntries              int           `env:"RT_AUDIT_MAX_ENTRIES" envDefault:"10000"`
	AlertConnectionThreshold     int           `env:"RT_ALERT_CONNECTION_THRESHOLD" envDefault:"8000"`
	AlertViolationRateThreshold  float64       `env:"RT_ALERT_VIOLATION_RATE_THRESHOLD" envDefault:"0.1"`
	AlertErrorRateThreshold      float64       `env:"RT_ALERT_ERROR_RATE_THRESHOLD" envDefault:"0.05"`

	// Chat
	MaxMessageLength int           `env:"RT_MAX_MESSAGE_LENGTH" envDefault:"500"`
	HistoryPageLimit int           `env:"RT_HISTORY_PAGE_LIMIT" envDefault:"100"`
	TypingTTL        time.Duration `env:"RT_TYPING_TTL" envDefault:"5s"`

	// Fan-out worker pool
	WorkerCount     int `env:"RT_WORKER_COUNT" envDefault:"0"` // 0 = 2 x GOMAXPROCS
	WorkerQueueSize int `env:"RT_WORKER_QUEUE_SIZE" envDefault:"4096"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
//
// Optional logger parameter for structured logging. If nil, loading is silent.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production the environment is
	// provided by the orchestrator directly.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.MaxConnections == 0 {
		limit := memoryLimitBytes()
		cfg.MaxConnections = connectionsForMemory(limit)
		if logger != nil {
			logger.Info().
				Int64("memory_limit_bytes", limit).
				Int("max_connections", cfg.MaxConnections).
				Msg("Connection cap sized from memory limit")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that env parsing cannot express.
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("RT_MAX_CONNECTIONS must be positive, got %d", c.MaxConnections)
	}
	if c.MaxAuthAttempts <= 0 {
		return fmt.Errorf("RT_MAX_AUTH_ATTEMPTS must be positive, got %d", c.MaxAuthAttempts)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("RT_MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.HistoryPageLimit <= 0 || c.HistoryPageLimit > 1000 {
		return fmt.Errorf("RT_HISTORY_PAGE_LIMIT must be in (0,1000], got %d", c.HistoryPageLimit)
	}
	if !c.AllowAnonymous && c.JWTSecret == "" {
		return fmt.Errorf("RT_JWT_SECRET is required when anonymous connections are disabled")
	}
	return nil
}

// Print logs the effective configuration at startup. Secrets are elided.
func (c *Config) Print(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr).
		Str("admin_addr", c.AdminAddr).
		Str("environment", c.Environment).
		Int("max_connections", c.MaxConnections).
		Bool("allow_anonymous", c.AllowAnonymous).
		Bool("nats", c.NATSUrl != "").
		Bool("postgres", c.PostgresURL != "").
		Int("max_chat_events_per_min", c.MaxChatEventsPerMinute).
		Int("max_auth_attempts", c.MaxAuthAttempts).
		Dur("auth_window", c.AuthWindow).
		Msg("Configuration loaded")
}
