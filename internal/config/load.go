package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "RECAP"

// Load reads configuration from an optional config.yaml in the working
// directory and from RECAP_* environment variables. Environment variables
// take precedence over values from the file.
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile is Load with an explicit config file. An empty path searches
// the working directory for config.yaml; a missing file is not an error.
func LoadFromFile(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadClient reads only the client section, from the same sources as
// LoadFromFile. It does not require server settings such as the API key.
func LoadClient(path string) (*ClientConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	// Unmarshal resolves environment overrides per leaf key; UnmarshalKey
	// on the parent section would not.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg.Client); err != nil {
		return nil, fmt.Errorf("client configuration validation failed: %w", err)
	}

	return &cfg.Client, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if path != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so keys
	// without defaults must be bound explicitly.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"database.url", "RECAP_DATABASE_URL"},
		{"llm.gemini_api_key", "RECAP_LLM_GEMINI_API_KEY"},
		{"server.port", "RECAP_SERVER_PORT"},
		{"server.log_level", "RECAP_SERVER_LOG_LEVEL"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	return v, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "recap.db")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("llm.model_name", "gemini-2.5-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.request_timeout", 90*time.Second)

	v.SetDefault("jobs.worker_count", 2)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.liveness_window", 2*time.Minute)
	v.SetDefault("jobs.terminal_ttl", 60*time.Minute)
	v.SetDefault("jobs.reap_interval", time.Minute)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.poll_interval", time.Second)
	v.SetDefault("client.poll_timeout", 120*time.Second)
}
