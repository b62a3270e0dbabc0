// Package config assembles service settings from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"digital.vasic.prompthunter/pkg/env"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Content  ContentConfig  `yaml:"content"`
	Log      LogConfig      `yaml:"log"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	AI       AIConfig       `yaml:"ai"`
	Rotation RotationConfig `yaml:"rotation"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// ServerConfig holds HTTP and session lifetime settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionIdleTTL  time.Duration `yaml:"session_idle_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// ContentConfig points at the challenge pack file or directory.
type ContentConfig struct {
	PackPath string `yaml:"pack_path"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// SandboxConfig controls player code execution.
type SandboxConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AIConfig controls the generative model client.
type AIConfig struct {
	Model              string        `yaml:"model"`
	Temperature        float64       `yaml:"temperature"`
	APIKey             string        `yaml:"api_key"`
	MinRequestInterval time.Duration `yaml:"min_request_interval"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryBase          time.Duration `yaml:"retry_base"`
	RetryCap           time.Duration `yaml:"retry_cap"`
	RetryJitter        time.Duration `yaml:"retry_jitter"`
}

// RotationConfig controls copy-typing sentence pools.
type RotationConfig struct {
	PremadeCap int `yaml:"premade_cap"`
	BatchSize  int `yaml:"batch_size"`
}

// MonitorConfig toggles the live event feed.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SessionIdleTTL:  30 * time.Minute,
			SweepInterval:   time.Minute,
		},
		Content: ContentConfig{PackPath: "content"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Sandbox: SandboxConfig{Timeout: 500 * time.Millisecond},
		AI: AIConfig{
			Model:              "gemini-1.5-flash",
			Temperature:        0.7,
			MinRequestInterval: time.Second,
			MaxRetries:         3,
			RetryBase:          time.Second,
			RetryCap:           8 * time.Second,
			RetryJitter:        250 * time.Millisecond,
		},
		Rotation: RotationConfig{PremadeCap: 10, BatchSize: 5},
		Monitor:  MonitorConfig{Enabled: true},
	}
}

// Load builds a Config from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string, loader env.Loader) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if loader != nil {
		if err := cfg.applyEnv(loader); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(l env.Loader) error {
	env.String(l, "PH_ADDR", &c.Server.Addr)
	env.String(l, "PH_PACK_PATH", &c.Content.PackPath)
	env.String(l, "PH_LOG_LEVEL", &c.Log.Level)
	env.String(l, "PH_LOG_FORMAT", &c.Log.Format)
	env.String(l, "PH_LOG_FILE", &c.Log.File)
	env.String(l, "GEMINI_MODEL", &c.AI.Model)
	if key := l.GetAPIKey("gemini"); key != "" {
		c.AI.APIKey = key
	}

	return errors.Join(
		env.Duration(l, "PH_SESSION_IDLE_TTL", &c.Server.SessionIdleTTL),
		env.Duration(l, "PH_SANDBOX_TIMEOUT", &c.Sandbox.Timeout),
		env.Float(l, "GEMINI_TEMPERATURE", &c.AI.Temperature),
		env.Duration(l, "PH_MIN_REQUEST_INTERVAL", &c.AI.MinRequestInterval),
		env.Int(l, "PH_MAX_RETRIES", &c.AI.MaxRetries),
		env.Duration(l, "PH_RETRY_BASE", &c.AI.RetryBase),
		env.Duration(l, "PH_RETRY_CAP", &c.AI.RetryCap),
		env.Int(l, "PH_PREMADE_CAP", &c.Rotation.PremadeCap),
		env.Int(l, "PH_BATCH_SIZE", &c.Rotation.BatchSize),
		env.Bool(l, "PH_MONITOR_ENABLED", &c.Monitor.Enabled),
	)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, errors.New("sandbox.timeout must be positive"))
	}
	if c.AI.MaxRetries < 0 {
		errs = append(errs, errors.New("ai.max_retries must not be negative"))
	}
	if c.AI.RetryBase <= 0 || c.AI.RetryCap < c.AI.RetryBase {
		errs = append(errs, errors.New("ai.retry_base must be positive and not exceed ai.retry_cap"))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, errors.New("ai.temperature must be within [0,2]"))
	}
	if c.Rotation.PremadeCap <= 0 {
		errs = append(errs, errors.New("rotation.premade_cap must be positive"))
	}
	if c.Rotation.BatchSize <= 0 {
		errs = append(errs, errors.New("rotation.batch_size must be positive"))
	}
	return errors.Join(errs...)
}
