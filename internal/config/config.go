// Package config loads service configuration from an optional YAML file
// with OPEN_DATA_* environment overrides on top. Environment always wins,
// so containerized deployments can run without a config file at all.
package config

import (
	"os"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/openportal/datainsight/internal/errs"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Log       Log       `yaml:"log"`
	Jobs      Jobs      `yaml:"jobs"`
	Scheduler Scheduler `yaml:"scheduler"`
	Archive   Archive   `yaml:"archive"`
	Insight   Insight   `yaml:"insight"`
}

// Server configures the HTTP listener.
type Server struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Database selects the repository backend by URL
// (memory://, sqlite://, postgres://, mysql://).
type Database struct {
	URL string `yaml:"url"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Jobs sizes the ingestion worker pool.
type Jobs struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Scheduler toggles cron-based refresh.
type Scheduler struct {
	Enabled bool `yaml:"enabled"`
}

// Archive configures the optional summary artifact store.
// An empty endpoint disables archiving.
type Archive struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// Enabled reports whether archiving is configured.
func (a Archive) Enabled() bool {
	return a.Endpoint != ""
}

// Insight configures the optional Q&A backend.
// An empty API key disables the feature.
type Insight struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server:    Server{ListenAddr: ":8080"},
		Database:  Database{URL: "sqlite://data/datainsight.db"},
		Log:       Log{Level: "info", Format: "json"},
		Jobs:      Jobs{Workers: 2, QueueSize: 64},
		Scheduler: Scheduler{Enabled: true},
		Archive:   Archive{Bucket: "datainsight"},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// A missing file is fine; env and defaults carry the config.
		case err != nil:
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "reading config file", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errs.Wrap(errs.ErrKindInvalidInput, "parsing config file", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays OPEN_DATA_* environment variables.
func (c *Config) applyEnv() {
	envStr("OPEN_DATA_LISTEN_ADDR", &c.Server.ListenAddr)
	envStr("OPEN_DATA_DATABASE_URL", &c.Database.URL)
	envStr("OPEN_DATA_LOG_LEVEL", &c.Log.Level)
	envStr("OPEN_DATA_LOG_FORMAT", &c.Log.Format)
	envInt("OPEN_DATA_JOB_WORKERS", &c.Jobs.Workers)
	envInt("OPEN_DATA_JOB_QUEUE_SIZE", &c.Jobs.QueueSize)
	envBool("OPEN_DATA_SCHEDULER_ENABLED", &c.Scheduler.Enabled)
	envStr("OPEN_DATA_ARCHIVE_ENDPOINT", &c.Archive.Endpoint)
	envStr("OPEN_DATA_ARCHIVE_BUCKET", &c.Archive.Bucket)
	envStr("OPEN_DATA_ARCHIVE_ACCESS_KEY", &c.Archive.AccessKey)
	envStr("OPEN_DATA_ARCHIVE_SECRET_KEY", &c.Archive.SecretKey)
	envBool("OPEN_DATA_ARCHIVE_USE_SSL", &c.Archive.UseSSL)
	envStr("OPEN_DATA_ARCHIVE_REGION", &c.Archive.Region)
	envStr("OPEN_DATA_INSIGHT_BASE_URL", &c.Insight.BaseURL)
	envStr("OPEN_DATA_INSIGHT_MODEL", &c.Insight.Model)
	envStr("OPEN_DATA_INSIGHT_API_KEY", &c.Insight.APIKey)
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
