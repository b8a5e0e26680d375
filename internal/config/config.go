package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Voicedrop VoicedropConfig `yaml:"voicedrop"`
	Mailstats MailstatsConfig `yaml:"mailstats"`
	Sync      SyncConfig      `yaml:"sync"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings for the cross-host sync lock.
// When Addr is empty the orchestrator falls back to the in-process guard
// plus a Postgres advisory lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// VoicedropConfig holds file-drop ingestion settings. SFTP credentials are
// deliberately absent: they are read from the sync_settings table.
type VoicedropConfig struct {
	StagingDir          string `yaml:"staging_dir"`
	FileExtension       string `yaml:"file_extension"`
	ConnectTimeoutSecs  int    `yaml:"connect_timeout_seconds"`
	ConnectRetries      int    `yaml:"connect_retries"`
	InsertBatchSize     int    `yaml:"insert_batch_size"`
}

// ConnectTimeout returns the SFTP dial timeout as a duration.
func (c VoicedropConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// MailstatsConfig holds email reporting API settings shared by all tenants.
type MailstatsConfig struct {
	TimeoutSeconds       int `yaml:"timeout_seconds"`
	ReportTimeoutSeconds int `yaml:"report_timeout_seconds"`
	PageLimit            int `yaml:"page_limit"`
	PageRetries          int `yaml:"page_retries"`
	PageConcurrency      int `yaml:"page_concurrency"`
	MonthPauseSeconds    int `yaml:"month_pause_seconds"`
}

// Timeout returns the metadata-call timeout as a duration.
func (c MailstatsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReportTimeout returns the report-page timeout as a duration.
func (c MailstatsConfig) ReportTimeout() time.Duration {
	return time.Duration(c.ReportTimeoutSeconds) * time.Second
}

// MonthPause returns the delay between backfill months as a duration.
func (c MailstatsConfig) MonthPause() time.Duration {
	return time.Duration(c.MonthPauseSeconds) * time.Second
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	TenantBatchSize int `yaml:"tenant_batch_size"`
	BackfillMonths  int `yaml:"backfill_months"`
}

// Load reads and parses the configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Voicedrop.StagingDir == "" {
		cfg.Voicedrop.StagingDir = "data/voicedrop"
	}
	if cfg.Voicedrop.FileExtension == "" {
		cfg.Voicedrop.FileExtension = ".json"
	}
	if cfg.Voicedrop.ConnectTimeoutSecs == 0 {
		cfg.Voicedrop.ConnectTimeoutSecs = 15
	}
	if cfg.Voicedrop.ConnectRetries == 0 {
		cfg.Voicedrop.ConnectRetries = 3
	}
	if cfg.Voicedrop.InsertBatchSize == 0 {
		cfg.Voicedrop.InsertBatchSize = 500
	}
	if cfg.Mailstats.TimeoutSeconds == 0 {
		cfg.Mailstats.TimeoutSeconds = 30
	}
	if cfg.Mailstats.ReportTimeoutSeconds == 0 {
		cfg.Mailstats.ReportTimeoutSeconds = 120
	}
	if cfg.Mailstats.PageLimit == 0 {
		cfg.Mailstats.PageLimit = 1000
	}
	if cfg.Mailstats.PageRetries == 0 {
		cfg.Mailstats.PageRetries = 3
	}
	if cfg.Mailstats.PageConcurrency == 0 {
		cfg.Mailstats.PageConcurrency = 10
	}
	if cfg.Mailstats.MonthPauseSeconds == 0 {
		cfg.Mailstats.MonthPauseSeconds = 2
	}
	if cfg.Sync.TenantBatchSize == 0 {
		cfg.Sync.TenantBatchSize = 5
	}
	if cfg.Sync.BackfillMonths == 0 {
		cfg.Sync.BackfillMonths = 6
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if dir := os.Getenv("VOICEDROP_STAGING_DIR"); dir != "" {
		cfg.Voicedrop.StagingDir = dir
	}
	if v := os.Getenv("SYNC_TENANT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.TenantBatchSize = n
		}
	}
	if v := os.Getenv("MAILSTATS_PAGE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Mailstats.PageConcurrency = n
		}
	}

	return cfg, nil
}
