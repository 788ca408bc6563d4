// Package config provides configuration loading for the eproc scraper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database backends.
const (
	DatabasePostgres = "postgres"
	DatabaseMemory   = "memory"
)

// Storage backends.
const (
	StorageSupabase   = "supabase"
	StorageFilesystem = "filesystem"
)

// Config holds all configuration for the scraper
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Advocate AdvocateConfig `mapstructure:"advocate"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	// URL takes precedence over the postgres fields when set.
	URL      string         `mapstructure:"url"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString returns the connection URL for pgx and migrate.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	p := d.Postgres
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": []string{p.SSLMode}}.Encode(),
	}
	return u.String()
}

// PortalConfig holds the eProc portal settings.
type PortalConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	LoginPath         string        `mapstructure:"login_path"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	TOTPSecret        string        `mapstructure:"totp_secret"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Proxy             ProxyConfig   `mapstructure:"proxy"`
}

// ProxyConfig is an optional outbound HTTP proxy.
type ProxyConfig struct {
	Server   string `mapstructure:"server"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// URL returns the proxy URL with credentials as userinfo, or "" when no proxy is set.
func (p ProxyConfig) URL() (string, error) {
	if p.Server == "" {
		return "", nil
	}
	raw := p.Server
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid proxy server %q: %w", p.Server, err)
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String(), nil
}

// AdvocateConfig identifies the tracked advocate.
type AdvocateConfig struct {
	Name         string `mapstructure:"name"`
	Registration string `mapstructure:"registration"`
}

// SyncConfig holds the engine and run-loop settings.
type SyncConfig struct {
	ProcessLimit       int           `mapstructure:"process_limit"`
	CasePause          time.Duration `mapstructure:"case_pause"`
	ShortInterval      time.Duration `mapstructure:"short_interval"`
	LongInterval       time.Duration `mapstructure:"long_interval"`
	RecoveryBackoff    time.Duration `mapstructure:"recovery_backoff"`
	MaxRecoveryBackoff time.Duration `mapstructure:"max_recovery_backoff"`
}

// StorageConfig selects the document blob backend.
type StorageConfig struct {
	Backend    string           `mapstructure:"backend"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Filesystem FilesystemConfig `mapstructure:"filesystem"`
}

// SupabaseConfig holds Supabase Storage settings
type SupabaseConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Bucket  string        `mapstructure:"bucket"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FilesystemConfig holds local blob storage settings
type FilesystemConfig struct {
	Root    string `mapstructure:"root"`
	BaseURL string `mapstructure:"base_url"`
}

// RedisConfig holds the run lock settings
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps config keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"portal.username":       "EPROC_USERNAME",
	"portal.password":       "EPROC_PASSWORD",
	"portal.totp_secret":    "TOTP_SECRET",
	"portal.proxy.server":   "PROXY_SERVER",
	"portal.proxy.username": "PROXY_USERNAME",
	"portal.proxy.password": "PROXY_PASSWORD",
	"advocate.name":         "ADV_NAME",
	"sync.process_limit":    "PROCESS_LIMIT",
	"storage.supabase.url":  "SUPABASE_URL",
	"storage.supabase.key":  "SUPABASE_KEY",
	"database.url":          "DATABASE_URL",
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.type", DatabasePostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "eproc")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "eproc")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("portal.base_url", "https://eproc1g.tjrs.jus.br")
	v.SetDefault("portal.login_path", "/eproc/externo_controlador.php?acao=SSO%2Flogin")
	v.SetDefault("portal.username", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.totp_secret", "")
	v.SetDefault("portal.user_agent", "")
	v.SetDefault("portal.timeout", "2m")
	v.SetDefault("portal.requests_per_second", 2.0)
	v.SetDefault("portal.burst", 1)
	v.SetDefault("portal.proxy.server", "")
	v.SetDefault("portal.proxy.username", "")
	v.SetDefault("portal.proxy.password", "")

	v.SetDefault("advocate.name", "")
	v.SetDefault("advocate.registration", "")

	v.SetDefault("sync.process_limit", 0)
	v.SetDefault("sync.case_pause", "1s")
	v.SetDefault("sync.short_interval", "1m")
	v.SetDefault("sync.long_interval", "24h")
	v.SetDefault("sync.recovery_backoff", "30s")
	v.SetDefault("sync.max_recovery_backoff", "5m")

	v.SetDefault("storage.backend", StorageSupabase)
	v.SetDefault("storage.supabase.url", "")
	v.SetDefault("storage.supabase.key", "")
	v.SetDefault("storage.supabase.bucket", "process-documents")
	v.SetDefault("storage.supabase.timeout", "2m")
	v.SetDefault("storage.filesystem.root", "./documents")
	v.SetDefault("storage.filesystem.base_url", "")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.key", "eproc:sync:lock")
	v.SetDefault("redis.ttl", "3h")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/eproc")
	}

	// Environment variables override (EPROC_SERVER_PORT, etc.)
	v.SetEnvPrefix("EPROC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, legacy := range legacyEnv {
		prefixed := "EPROC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every missing setting a sync run needs.
func (c *Config) Validate() error {
	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	need("portal.username", c.Portal.Username)
	need("portal.password", c.Portal.Password)
	need("portal.totp_secret", c.Portal.TOTPSecret)

	switch c.Storage.Backend {
	case StorageSupabase:
		need("storage.supabase.url", c.Storage.Supabase.URL)
		need("storage.supabase.key", c.Storage.Supabase.Key)
		need("storage.supabase.bucket", c.Storage.Supabase.Bucket)
	case StorageFilesystem:
		need("storage.filesystem.root", c.Storage.Filesystem.Root)
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Database.Type {
	case DatabasePostgres, DatabaseMemory:
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}
	if _, err := c.Portal.Proxy.URL(); err != nil {
		return err
	}
	return nil
}

// ErrMissingSettings is wrapped by Validate when required settings are empty.
var ErrMissingSettings = errors.New("missing required settings")
