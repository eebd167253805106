package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables (prefixed DOCKGATE_, with dots replaced by
// underscores, e.g. DOCKGATE_SERVER_PORT) take precedence over values from
// config.yaml in the working directory. Returns a populated Config struct or
// an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DOCKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registered with empty defaults so AutomaticEnv picks them up
	// during Unmarshal even when no config file is present.
	v.SetDefault("database.url", "")
	v.SetDefault("protein.archive_base_url", "")
	v.SetDefault("protein.remap_path", "")

	v.SetDefault("protein.cache_dir", "./local_proteins")
	v.SetDefault("protein.min_file_bytes", 500)
	v.SetDefault("protein.fetch_timeout", 2*time.Minute)

	v.SetDefault("worker.accelerator_count", 1)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.job_timeout", 30*time.Minute)
	v.SetDefault("worker.max_job_attempts", 3)
	v.SetDefault("worker.results_dir", "./results")
	v.SetDefault("worker.stuck_delivery_check_interval", time.Minute)
	v.SetDefault("worker.stuck_delivery_age", 5*time.Minute)

	v.SetDefault("engine.python", "python")
	v.SetDefault("engine.work_dir", "")
	v.SetDefault("engine.config_path", "default_inference_args.yaml")

	v.SetDefault("callback.max_retries", 4)
	v.SetDefault("callback.base_delay", 2*time.Second)
	v.SetDefault("callback.request_timeout", 30*time.Second)
}
