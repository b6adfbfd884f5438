package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Dispatch DispatchConfig `mapstructure:"dispatch" validate:"required"`
	Schedule ScheduleConfig `mapstructure:"schedule" validate:"required"`
	Notify   NotifyConfig   `mapstructure:"notify" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a rotated copy of the JSON log stream.
	LogFile         string        `mapstructure:"log_file"`
	LogMaxSizeMB    int           `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups   int           `mapstructure:"log_max_backups" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=memory postgres sqlite"`
	URL          string `mapstructure:"url" validate:"required_unless=Driver memory"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetime bounds tokens minted by `careminder token`.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// DispatchConfig tunes the dispatcher loop.
type DispatchConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	// GraceWindow is how long a dispatched occurrence may stay unconfirmed
	// before it counts as missed.
	GraceWindow time.Duration `mapstructure:"grace_window" validate:"gt=0"`
	BatchSize   int           `mapstructure:"batch_size" validate:"gt=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"gt=0"`
}

// ScheduleConfig defines the calendar occurrences are computed against.
type ScheduleConfig struct {
	Location string `mapstructure:"location" validate:"required"`
	DayStart string `mapstructure:"day_start" validate:"required"`
	DayEnd   string `mapstructure:"day_end" validate:"required"`
}

// NotifyConfig selects how patients are notified.
type NotifyConfig struct {
	Kind       string        `mapstructure:"kind" validate:"required,oneof=log webhook"`
	WebhookURL string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Workers    int           `mapstructure:"workers" validate:"gt=0"`
	QueueSize  int           `mapstructure:"queue_size" validate:"gt=0"`
}

// RetryConfig bounds retries of transient store failures.
type RetryConfig struct {
	MaxRetries uint64        `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}
