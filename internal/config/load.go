package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. CAREMINDER_SERVER_PORT.
const EnvPrefix = "CAREMINDER"

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. When
// configFile is empty, config.yaml is looked up in the working directory and
// its absence is not an error.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Notify.Kind == "webhook" && cfg.Notify.WebhookURL == "" {
		return nil, errors.New("config validation failed: notify.webhook_url is required for webhook notifications")
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal, including keys that have no meaningful default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.log_max_size_mb", 100)
	v.SetDefault("server.log_max_backups", 3)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime", "24h")

	v.SetDefault("dispatch.tick_interval", "1m")
	v.SetDefault("dispatch.grace_window", "30m")
	v.SetDefault("dispatch.batch_size", 500)
	v.SetDefault("dispatch.concurrency", 8)

	v.SetDefault("schedule.location", "UTC")
	v.SetDefault("schedule.day_start", "00:00")
	v.SetDefault("schedule.day_end", "24:00")

	v.SetDefault("notify.kind", "log")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue_size", 1000)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "50ms")
	v.SetDefault("retry.max_delay", "1s")
}
