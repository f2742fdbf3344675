package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is the desktop browser user agent sent when scraping.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// MailboxConfig holds the IMAP connection and polling settings.
type MailboxConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty; it is then looked up in the keyring.
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Folder   string `mapstructure:"folder" yaml:"folder"`

	// PollIntervalSec is how often (in seconds) to check for unseen mail.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// BackoffSec is the sleep after a cycle aborted mid-way.
	BackoffSec int `mapstructure:"backoff_sec" yaml:"backoff_sec"`

	// FetchTimeoutSec bounds connecting and listing unseen mail in a
	// poll cycle. Fetching the messages themselves is not bounded by it.
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
}

// PollInterval returns the configured poll interval.
func (c MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Backoff returns the configured failure backoff.
func (c MailboxConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSec) * time.Second
}

// FetchTimeout returns the configured per-cycle timeout.
func (c MailboxConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// DatabaseConfig selects the storage engine by URL scheme.
type DatabaseConfig struct {
	// URL is either sqlite://<path>, a bare file path, or a
	// postgres:// connection string.
	URL string `mapstructure:"url" yaml:"url"`
}

// PreviewConfig holds link preview resolution settings.
type PreviewConfig struct {
	TimeoutSec           int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	UserAgent            string `mapstructure:"user_agent" yaml:"user_agent"`
	InstagramAccessToken string `mapstructure:"instagram_access_token" yaml:"instagram_access_token"`

	// Endpoints overrides oEmbed endpoint templates by platform name.
	// Each template must contain a single %s for the escaped URL.
	Endpoints map[string]string `mapstructure:"endpoints" yaml:"endpoints"`
}

// Timeout returns the per-request timeout.
func (c PreviewConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ServerConfig holds read-path HTTP settings.
type ServerConfig struct {
	Addr             string `mapstructure:"addr" yaml:"addr"`
	FeedPageLimitMax int    `mapstructure:"feed_page_limit_max" yaml:"feed_page_limit_max"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// AppConfig is the top-level application configuration. It is built once
// at start and handed to each component's constructor.
type AppConfig struct {
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Preview  PreviewConfig  `mapstructure:"preview" yaml:"preview"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/linkfeed/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "linkfeed", "config.yaml")
}

// defaults lists every key with its default value.
var defaults = map[string]any{
	"mailbox.host":               "imap.gmail.com",
	"mailbox.port":               "993",
	"mailbox.tls":                true,
	"mailbox.folder":             "INBOX",
	"mailbox.poll_interval_sec":  30,
	"mailbox.backoff_sec":        60,
	"mailbox.fetch_timeout_sec":  60,
	"database.url":               "sqlite://feed.db",
	"preview.timeout_sec":        15,
	"preview.user_agent":         DefaultUserAgent,
	"server.addr":                ":8080",
	"server.feed_page_limit_max": 100,
	"log.level":                  "info",
	"log.development":            false,
}

// envBindings maps config keys to environment variables. The legacy
// names come after the LINKFEED_ ones and are consulted in order.
var envBindings = map[string][]string{
	"mailbox.host":              {"LINKFEED_MAILBOX_HOST"},
	"mailbox.port":              {"LINKFEED_MAILBOX_PORT"},
	"mailbox.username":          {"LINKFEED_MAILBOX_USERNAME", "GMAIL_USER"},
	"mailbox.password":          {"LINKFEED_MAILBOX_PASSWORD", "GMAIL_PASSWORD"},
	"mailbox.tls":               {"LINKFEED_MAILBOX_TLS"},
	"mailbox.folder":            {"LINKFEED_MAILBOX_FOLDER"},
	"mailbox.poll_interval_sec": {"LINKFEED_POLL_INTERVAL_SEC", "CHECK_INTERVAL"},
	"mailbox.backoff_sec":       {"LINKFEED_BACKOFF_SEC"},
	"database.url":              {"LINKFEED_DATABASE_URL", "DATABASE_URL"},
	"preview.timeout_sec":       {"LINKFEED_PREVIEW_TIMEOUT_SEC"},
	"preview.instagram_access_token": {
		"LINKFEED_INSTAGRAM_ACCESS_TOKEN",
	},
	"server.addr": {"LINKFEED_SERVER_ADDR"},
	"log.level":   {"LINKFEED_LOG_LEVEL"},
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Mailbox: MailboxConfig{
			Host:            "imap.gmail.com",
			Port:            "993",
			TLS:             true,
			Folder:          "INBOX",
			PollIntervalSec: 30,
			BackoffSec:      60,
			FetchTimeoutSec: 60,
		},
		Database: DatabaseConfig{URL: "sqlite://feed.db"},
		Preview: PreviewConfig{
			TimeoutSec: 15,
			UserAgent:  DefaultUserAgent,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			FeedPageLimitMax: 100,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper, then applies environment overrides. A missing file is not an
// error; defaults and environment values are used instead.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors replaces non-positive durations with their defaults.
func (c *AppConfig) applyFloors() {
	if c.Mailbox.PollIntervalSec <= 0 {
		c.Mailbox.PollIntervalSec = 30
	}
	if c.Mailbox.BackoffSec <= 0 {
		c.Mailbox.BackoffSec = 60
	}
	if c.Mailbox.FetchTimeoutSec <= 0 {
		c.Mailbox.FetchTimeoutSec = 60
	}
	if c.Preview.TimeoutSec <= 0 {
		c.Preview.TimeoutSec = 15
	}
	if c.Preview.UserAgent == "" {
		c.Preview.UserAgent = DefaultUserAgent
	}
	if c.Server.FeedPageLimitMax <= 0 {
		c.Server.FeedPageLimitMax = 100
	}
}

// ValidateMailbox checks the settings the poller cannot run without.
func (c *AppConfig) ValidateMailbox() error {
	if c.Mailbox.Username == "" {
		return errors.New("mailbox.username is required for polling")
	}
	if c.Mailbox.Host == "" || c.Mailbox.Port == "" {
		return errors.New("mailbox.host and mailbox.port are required for polling")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("database", cfg.Database)
	v.Set("preview", cfg.Preview)
	v.Set("server", cfg.Server)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
