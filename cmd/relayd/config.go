package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lsendel/relay"
)

// Config is the relayd daemon configuration. It is loaded from a YAML
// file (flag -config, default relayd.yaml); RELAY_* environment
// variables override individual fields afterwards, so secrets never need
// to live in the file.
type Config struct {
	Store struct {
		// Backend selects the storage driver: postgres, bun, redis, or
		// memory. memory is for local development only.
		Backend string `yaml:"backend"`
		// DSN is the Postgres connection string (postgres and bun).
		DSN string `yaml:"dsn"`
		// RedisAddr is the host:port of the Redis server (redis).
		RedisAddr string `yaml:"redis_addr"`
		// RedisDB selects the Redis logical database.
		RedisDB int `yaml:"redis_db"`
	} `yaml:"store"`

	Log struct {
		// Level is debug, info, warn, or error.
		Level string `yaml:"level"`
		// Format is text or json.
		Format string `yaml:"format"`
	} `yaml:"log"`

	Dispatch struct {
		JobBatchSize     int      `yaml:"job_batch_size"`
		JobRetryDelay    duration `yaml:"job_retry_delay"`
		JobMaxAttempts   int      `yaml:"job_max_attempts"`
		NotifyBatchSize  int      `yaml:"notify_batch_size"`
		NotifyRetryDelay duration `yaml:"notify_retry_delay"`
		SendTimeout      duration `yaml:"send_timeout"`
		TickDeadline     duration `yaml:"tick_deadline"`
		PollInterval     duration `yaml:"poll_interval"`
		ShutdownTimeout  duration `yaml:"shutdown_timeout"`
	} `yaml:"dispatch"`

	Email struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		From     string `yaml:"from"`
	} `yaml:"email"`
}

// duration lets YAML carry Go duration strings ("120s", "2m").
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

func defaultConfig() Config {
	var cfg Config
	cfg.Store.Backend = "memory"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// loadConfig reads the YAML file at path and applies environment
// overrides. A missing file is not an error: the daemon runs on defaults
// plus the environment.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment.
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Store.Backend, "RELAY_STORE_BACKEND")
	setString(&cfg.Store.DSN, "RELAY_STORE_DSN")
	setString(&cfg.Store.RedisAddr, "RELAY_REDIS_ADDR")
	setInt(&cfg.Store.RedisDB, "RELAY_REDIS_DB")

	setString(&cfg.Log.Level, "RELAY_LOG_LEVEL")
	setString(&cfg.Log.Format, "RELAY_LOG_FORMAT")

	setInt(&cfg.Dispatch.JobBatchSize, "RELAY_JOB_BATCH_SIZE")
	setDur(&cfg.Dispatch.JobRetryDelay, "RELAY_JOB_RETRY_DELAY")
	setInt(&cfg.Dispatch.JobMaxAttempts, "RELAY_JOB_MAX_ATTEMPTS")
	setInt(&cfg.Dispatch.NotifyBatchSize, "RELAY_NOTIFY_BATCH_SIZE")
	setDur(&cfg.Dispatch.NotifyRetryDelay, "RELAY_NOTIFY_RETRY_DELAY")
	setDur(&cfg.Dispatch.SendTimeout, "RELAY_SEND_TIMEOUT")
	setDur(&cfg.Dispatch.TickDeadline, "RELAY_TICK_DEADLINE")
	setDur(&cfg.Dispatch.PollInterval, "RELAY_POLL_INTERVAL")
	setDur(&cfg.Dispatch.ShutdownTimeout, "RELAY_SHUTDOWN_TIMEOUT")

	setString(&cfg.Email.Endpoint, "RELAY_EMAIL_ENDPOINT")
	setString(&cfg.Email.APIKey, "RELAY_EMAIL_API_KEY")
	setString(&cfg.Email.From, "RELAY_EMAIL_FROM")
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

func setDur(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = duration(d)
		}
	}
}

// dispatchConfig converts the YAML section into the engine's Config.
// Zero fields fall back to the engine defaults.
func (c Config) dispatchConfig() relay.Config {
	return relay.Config{
		JobBatchSize:     c.Dispatch.JobBatchSize,
		JobRetryDelay:    time.Duration(c.Dispatch.JobRetryDelay),
		JobMaxAttempts:   c.Dispatch.JobMaxAttempts,
		NotifyBatchSize:  c.Dispatch.NotifyBatchSize,
		NotifyRetryDelay: time.Duration(c.Dispatch.NotifyRetryDelay),
		SendTimeout:      time.Duration(c.Dispatch.SendTimeout),
		TickDeadline:     time.Duration(c.Dispatch.TickDeadline),
		PollInterval:     time.Duration(c.Dispatch.PollInterval),
		ShutdownTimeout:  time.Duration(c.Dispatch.ShutdownTimeout),
	}
}

// logger builds the daemon's slog.Logger from the log section.
func (c Config) logger() *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
