package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the env var pointing at an optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"./config.yaml", "/etc/records-tracks/config.yaml"}

// Config 应用配置
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Buffer   BufferConfig   `koanf:"buffer"`
	Worker   WorkerConfig   `koanf:"worker"`
	Tracks   TracksConfig   `koanf:"tracks"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Mode            string        `koanf:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig sqlite 配置
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// BufferConfig configures the side-buffer for deferred trailing runs.
type BufferConfig struct {
	Path     string        `koanf:"path"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
}

// WorkerConfig controls background job execution.
type WorkerConfig struct {
	Concurrency int           `koanf:"concurrency"`
	QueueSize   int           `koanf:"queue_size"`
	JobTimeout  time.Duration `koanf:"job_timeout"`
}

// TracksConfig holds engine-wide track settings.
type TracksConfig struct {
	GracePeriod time.Duration `koanf:"grace_period"`
}

// SecurityConfig controls API authentication.
type SecurityConfig struct {
	JWTSecret    string `koanf:"jwt_secret"`
	AuthDisabled bool   `koanf:"auth_disabled"`

	// Job submissions allowed per user within JobRateWindow; 0 disables the limit.
	JobRateLimit  int           `koanf:"job_rate_limit"`
	JobRateWindow time.Duration `koanf:"job_rate_window"`
}

// LoggingConfig is passed to logging.Init.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			Mode:            "release",
		},
		Database: DatabaseConfig{Path: "./data/tracks/tracks.db"},
		Buffer: BufferConfig{
			Path: "./data/tracks/buffer",
			TTL:  7 * 24 * time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   256,
			JobTimeout:  30 * time.Minute,
		},
		Tracks: TracksConfig{GracePeriod: 5 * time.Minute},
		Security: SecurityConfig{
			JobRateLimit:  30,
			JobRateWindow: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// envMappings 环境变量 -> 配置路径
var envMappings = map[string]string{
	"port":                    "server.port",
	"server_port":             "server.port",
	"server_shutdown_timeout": "server.shutdown_timeout",
	"gin_mode":                "server.mode",
	"db_path":                 "database.path",
	"buffer_path":             "buffer.path",
	"buffer_in_memory":        "buffer.in_memory",
	"buffer_ttl":              "buffer.ttl",
	"worker_concurrency":      "worker.concurrency",
	"worker_queue_size":       "worker.queue_size",
	"worker_job_timeout":      "worker.job_timeout",
	"tracks_grace_period":     "tracks.grace_period",
	"jwt_secret":              "security.jwt_secret",
	"auth_disabled":           "security.auth_disabled",
	"job_rate_limit":          "security.job_rate_limit",
	"job_rate_window":         "security.job_rate_window",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
}

// envTransformFunc maps known env vars to koanf paths and drops the rest.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load 加载配置: defaults -> YAML file (optional) -> environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if !c.Buffer.InMemory && c.Buffer.Path == "" {
		errs = append(errs, errors.New("buffer.path is required unless buffer.in_memory is set"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive, got %d", c.Worker.Concurrency))
	}
	if c.Worker.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.queue_size must be positive, got %d", c.Worker.QueueSize))
	}
	if c.Tracks.GracePeriod < 0 {
		errs = append(errs, errors.New("tracks.grace_period must not be negative"))
	}
	if !c.Security.AuthDisabled && c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret is required unless security.auth_disabled is set"))
	}
	if c.Security.JobRateLimit > 0 && c.Security.JobRateWindow <= 0 {
		errs = append(errs, errors.New("security.job_rate_window must be positive when job_rate_limit is set"))
	}
	return errors.Join(errs...)
}
