package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "eleanor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ELEANOR_PORT")
	setString(&cfg.Server.CORSOrigin, "ELEANOR_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ELEANOR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ELEANOR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ELEANOR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ELEANOR_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ELEANOR_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.PrecedentBucket, "ELEANOR_PRECEDENT_BUCKET")
	setDuration(&cfg.NATS.PrecedentTTL, "ELEANOR_PRECEDENT_TTL")
	setInt64(&cfg.NATS.L1SizeMB, "ELEANOR_PRECEDENT_L1_SIZE_MB")
	setString(&cfg.LLM.URL, "ELEANOR_LLM_URL")
	setString(&cfg.LLM.APIKey, "ELEANOR_LLM_API_KEY")
	setString(&cfg.Logging.Level, "ELEANOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ELEANOR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ELEANOR_LOG_ASYNC")
	setInt(&cfg.Logging.ChanSize, "ELEANOR_LOG_CHAN_SIZE")
	setInt(&cfg.Breaker.MaxFailures, "ELEANOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ELEANOR_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "ELEANOR_RATE_RPS")
	setInt(&cfg.Rate.Burst, "ELEANOR_RATE_BURST")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "ELEANOR_OTEL_INSECURE")
	setInt64(&cfg.Engine.MaxConcurrent, "ELEANOR_ENGINE_MAX_CONCURRENT")
	setInt(&cfg.Engine.CacheCapacity, "ELEANOR_ENGINE_CACHE_CAPACITY")
	setDuration(&cfg.Engine.CacheTTL, "ELEANOR_ENGINE_CACHE_TTL")
	setInt(&cfg.Engine.PrecedentLimit, "ELEANOR_ENGINE_PRECEDENT_LIMIT")
	setFloat64(&cfg.Engine.Thresholds.Ambiguity, "ELEANOR_ENGINE_AMBIGUITY")
	setFloat64(&cfg.Engine.Thresholds.MinConfidence, "ELEANOR_ENGINE_MIN_CONFIDENCE")
}

// validate checks that required fields are set and that the critic set
// is well-formed. Configuration errors are fatal, never retried.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Engine.MaxConcurrent < 1 {
		return errors.New("engine.max_concurrent must be >= 1")
	}
	if cfg.Engine.Thresholds.Ambiguity < 0 || cfg.Engine.Thresholds.Ambiguity > 1 {
		return errors.New("engine.thresholds.ambiguity must be in [0,1]")
	}
	if cfg.Engine.Thresholds.MinConfidence < 0 || cfg.Engine.Thresholds.MinConfidence > 1 {
		return errors.New("engine.thresholds.min_confidence must be in [0,1]")
	}
	seen := make(map[string]bool, len(cfg.Engine.Critics))
	for i, c := range cfg.Engine.Critics {
		if c.Name == "" {
			return fmt.Errorf("engine.critics[%d].name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("engine.critics: duplicate name %q", c.Name)
		}
		seen[c.Name] = true
		if c.Weight < 0 {
			return fmt.Errorf("engine.critics[%d] (%s): weight must be >= 0", i, c.Name)
		}
		if c.Timeout <= 0 {
			return fmt.Errorf("engine.critics[%d] (%s): timeout must be positive", i, c.Name)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
