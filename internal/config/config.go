package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the file
const (
	EnvSMTPUser     = "PAGESEND_SMTP_USER"
	EnvSMTPPassword = "PAGESEND_SMTP_PASSWORD"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Directory DirectoryConfig `yaml:"directory"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Mail      MailConfig      `yaml:"mail"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"` // covers a whole dispatch, keep it generous
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig contains the recipient database location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DirectoryConfig contains recipient directory seeding
type DirectoryConfig struct {
	SeedFile      string `yaml:"seed_file"`
	ImportOnStart *bool  `yaml:"import_on_start"`
}

// UploadsConfig bounds the upload session store
type UploadsConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
}

// MailConfig contains outbound mail settings
type MailConfig struct {
	Mode               string        `yaml:"mode"` // smtp, sandbox
	From               string        `yaml:"from"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	TLS                string        `yaml:"tls"` // none, starttls, implicit
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Hostname           string        `yaml:"hostname"`
	Timeout            time.Duration `yaml:"timeout"`
	DKIM               DKIMConfig    `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// DispatchConfig contains dispatch defaults and quotas
type DispatchConfig struct {
	ItemTimeout    time.Duration   `yaml:"item_timeout"`
	DefaultSubject string          `yaml:"default_subject"`
	DefaultBody    string          `yaml:"default_body"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains send quotas. Unset levels are unlimited.
type RateLimitConfig struct {
	Global          *LimitValues  `yaml:"global,omitempty"`
	RecipientDomain *LimitValues  `yaml:"recipient_domain,omitempty"`
	Recipient       *LimitValues  `yaml:"recipient,omitempty"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// SandboxConfig locates the bbolt file holding captured messages and
// rate limit counters
type SandboxConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig protects the operator UI with basic auth. An empty username
// disables it.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	AllowedIPs      []string      `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to scrape (empty = allow all)
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv lets SMTP credentials come from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSMTPUser); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.Mail.Password = v
	}
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20 // 32 MiB
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/pagesend/pagesend.db"
	}

	if c.Directory.SeedFile == "" {
		c.Directory.SeedFile = "data/terceros.xlsx"
	}
	if c.Directory.ImportOnStart == nil {
		enabled := true
		c.Directory.ImportOnStart = &enabled
	}

	if c.Uploads.MaxSessions == 0 {
		c.Uploads.MaxSessions = 64
	}
	if c.Uploads.TTL == 0 {
		c.Uploads.TTL = time.Hour
	}

	if c.Mail.Mode == "" {
		c.Mail.Mode = "smtp"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.TLS == "" {
		c.Mail.TLS = "starttls"
	}
	if c.Mail.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Mail.Hostname = hostname
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}
	if c.Mail.From == "" && c.Mail.Username != "" {
		// Relays usually only accept their own account as sender
		c.Mail.From = c.Mail.Username
	}

	if c.Dispatch.ItemTimeout == 0 {
		c.Dispatch.ItemTimeout = 60 * time.Second
	}
	if c.Dispatch.DefaultSubject == "" {
		c.Dispatch.DefaultSubject = "Documento"
	}
	if c.Dispatch.DefaultBody == "" {
		c.Dispatch.DefaultBody = "Adjuntamos su documento."
	}
	if c.Dispatch.RateLimit.FlushInterval == 0 {
		c.Dispatch.RateLimit.FlushInterval = 10 * time.Second
	}

	if c.Sandbox.Path == "" {
		c.Sandbox.Path = "/var/lib/pagesend/sandbox.db"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validModes := map[string]bool{"smtp": true, "sandbox": true}
	if !validModes[c.Mail.Mode] {
		return fmt.Errorf("invalid mail.mode: %s (must be smtp or sandbox)", c.Mail.Mode)
	}

	if c.Mail.From == "" {
		return fmt.Errorf("mail.from is required")
	}

	if c.Mail.Mode == "smtp" {
		if c.Mail.Host == "" {
			return fmt.Errorf("mail.host is required in smtp mode")
		}
		validTLS := map[string]bool{"none": true, "starttls": true, "implicit": true}
		if !validTLS[c.Mail.TLS] {
			return fmt.Errorf("invalid mail.tls: %s (must be none, starttls or implicit)", c.Mail.TLS)
		}
		if (c.Mail.Username == "") != (c.Mail.Password == "") {
			return fmt.Errorf("mail.username and mail.password must be set together")
		}
	}

	if err := c.validateDKIM(); err != nil {
		return err
	}

	if c.Auth.Username != "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password_hash is required when auth.username is set")
	}

	if c.Uploads.MaxSessions < 0 {
		return fmt.Errorf("uploads.max_sessions must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// validateDKIM validates DKIM configuration
func (c *Config) validateDKIM() error {
	if !c.Mail.DKIM.Enabled {
		return nil
	}

	if c.Mail.DKIM.Selector == "" {
		return fmt.Errorf("mail.dkim.selector is required when DKIM is enabled")
	}
	if c.Mail.DKIM.KeyFile == "" {
		return fmt.Errorf("mail.dkim.key_file is required when DKIM is enabled")
	}
	if c.Mail.DKIM.Domain == "" {
		return fmt.Errorf("mail.dkim.domain is required when DKIM is enabled")
	}

	return nil
}

// ImportOnStart reports whether the seed file is imported at startup
func (c *Config) ImportOnStart() bool {
	return c.Directory.ImportOnStart == nil || *c.Directory.ImportOnStart
}

// AuthEnabled reports whether operator basic auth is configured
func (c *Config) AuthEnabled() bool {
	return c.Auth.Username != ""
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Mail.Password != "" {
		out.Mail.Password = "********"
	}
	if out.Auth.PasswordHash != "" {
		out.Auth.PasswordHash = "********"
	}
	return &out
}
