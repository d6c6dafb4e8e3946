// Package config loads and validates server configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Executor, Pipeline, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// StaticDir overrides the embedded interactive page and assets.
	StaticDir string          `yaml:"staticDir"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds how many annotation and match requests a single
// client address may make per window.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// ExecutorConfig sizes the annotation worker pool independently of the
// HTTP server's own concurrency.
type ExecutorConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queueSize"`
	Deadline  time.Duration `yaml:"deadline"`
}

// PipelineConfig holds the service-level annotation defaults layered over the
// compiled-in ones, and where the shutdown key is persisted.
type PipelineConfig struct {
	Defaults        map[string]string `yaml:"defaults"`
	ShutdownKeyFile string            `yaml:"shutdownKeyFile"`
}

// RedisConfig holds Redis connection and output caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings for request events.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PostgresConfig holds PostgreSQL connection parameters for stats snapshots.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Executor.Workers <= 0 {
		return fmt.Errorf("executor.workers must be positive, got %d", c.Executor.Workers)
	}
	if c.Executor.Deadline <= 0 {
		return fmt.Errorf("executor.deadline must be positive, got %v", c.Executor.Deadline)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.Requests <= 0 || c.Server.RateLimit.Window <= 0) {
		return fmt.Errorf("server.rateLimit needs positive requests and window when enabled")
	}
	if strings.TrimSpace(c.Pipeline.Defaults["annotators"]) == "" {
		return fmt.Errorf("pipeline.defaults.annotators must not be empty")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local use.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         9000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Requests: 600,
				Window:   time.Minute,
			},
		},
		Executor: ExecutorConfig{
			Workers:   runtime.NumCPU(),
			QueueSize: 1024,
			Deadline:  5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Defaults: map[string]string{
				"annotators":   "tokenize, ssplit, pos, lemma, ner, depparse",
				"inputFormat":  "text",
				"outputFormat": "json",
			},
			ShutdownKeyFile: filepath.Join(os.TempDir(), "corenlp.shutdown"),
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "corenlp-requests",
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "corenlp",
			User:             "corenlp",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     5,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CORENLP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORENLP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORENLP_STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v := os.Getenv("CORENLP_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit.Requests = n
			cfg.Server.RateLimit.Enabled = n > 0
		}
	}
	if v := os.Getenv("CORENLP_EXECUTOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.Workers = n
		}
	}
	if v := os.Getenv("CORENLP_EXECUTOR_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.Deadline = d
		}
	}
	if v := os.Getenv("CORENLP_ANNOTATORS"); v != "" {
		if cfg.Pipeline.Defaults == nil {
			cfg.Pipeline.Defaults = make(map[string]string)
		}
		cfg.Pipeline.Defaults["annotators"] = v
	}
	if v := os.Getenv("CORENLP_SHUTDOWN_KEY_FILE"); v != "" {
		cfg.Pipeline.ShutdownKeyFile = v
	}
	if v := os.Getenv("CORENLP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CORENLP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CORENLP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CORENLP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("CORENLP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CORENLP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CORENLP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
