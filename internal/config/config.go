package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
	Client   ClientConfig   `mapstructure:"client" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Supported database drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the SQL dialect: "pgx" for PostgreSQL or "sqlite" for an embedded file.
	Driver string `mapstructure:"driver" validate:"required,oneof=pgx sqlite"`
	// URL is a PostgreSQL connection URL or an SQLite file path/DSN.
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string        `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string        `mapstructure:"model_name" validate:"required"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// JobsConfig controls the background job runner and ledger maintenance.
type JobsConfig struct {
	// WorkerCount bounds how many generations run concurrently.
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
	// QueueSize is the number of dispatched jobs that may wait for a worker.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
	// LivenessWindow is how long an active job may go without an update
	// before it is considered abandoned.
	LivenessWindow time.Duration `mapstructure:"liveness_window" validate:"gt=0"`
	// TerminalTTL is how long completed and failed jobs are kept.
	TerminalTTL time.Duration `mapstructure:"terminal_ttl" validate:"gt=0"`
	// ReapInterval is how often the maintenance loop runs.
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
}

// ClientConfig holds defaults for the polling client and CLI.
type ClientConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
}
