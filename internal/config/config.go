package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

// PasswordEnv overrides an empty mailbox.password.
const PasswordEnv = "ORDERWATCH_PASSWORD"

// Config is the top-level application configuration.
type Config struct {
	LogLevel            string   `yaml:"log_level"`
	LogFormat           string   `yaml:"log_format"` // "text" or "pretty"
	Mailbox             Mailbox  `yaml:"mailbox"`
	Senders             []string `yaml:"senders"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	PollTimeoutSeconds  int      `yaml:"poll_timeout_seconds"`
	HTTP                HTTP     `yaml:"http"`
}

// Mailbox describes the monitored account.
type Mailbox struct {
	Protocol     string `yaml:"protocol"` // "imap" or "pop3"
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	UseTLS       bool   `yaml:"use_tls"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Folder       string `yaml:"folder"`
	LookbackDays int    `yaml:"lookback_days"`
}

// HTTP configures the sensor endpoint.
type HTTP struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultSenders are Amazon's Polish and US notification domains.
var DefaultSenders = []string{"amazon.pl", "amazon.com"}

// GetFolder returns the IMAP folder name, defaulting to "INBOX".
func (m *Mailbox) GetFolder() string {
	if m.Folder == "" {
		return "INBOX"
	}
	return m.Folder
}

// GetLookbackDays returns the number of days to look back, defaulting to 30.
func (m *Mailbox) GetLookbackDays() int {
	if m.LookbackDays <= 0 {
		return 30
	}
	return m.LookbackDays
}

// GetSenders returns the sender allow-list, defaulting to DefaultSenders.
func (c *Config) GetSenders() []string {
	if len(c.Senders) == 0 {
		return DefaultSenders
	}
	return c.Senders
}

// PollInterval returns the poll interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout bounds a single cycle.
func (c *Config) PollTimeout() time.Duration {
	if c.PollTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// GetListen returns the HTTP listen address, defaulting to ":8095".
func (h *HTTP) GetListen() string {
	if h.Listen == "" {
		return ":8095"
	}
	return h.Listen
}

// LoadEnv loads a .env file into the process environment. A missing file
// is not an error; variables already set are not overwritten.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Mailbox: Mailbox{
			Protocol: "imap",
			UseTLS:   true,
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Mailbox.Password == "" {
		cfg.Mailbox.Password = os.Getenv(PasswordEnv)
	}
	if cfg.Mailbox.Port == 0 {
		cfg.Mailbox.Port = defaultPort(cfg.Mailbox.Protocol, cfg.Mailbox.UseTLS)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaultPort(protocol string, useTLS bool) int {
	switch {
	case protocol == "pop3" && useTLS:
		return 995
	case protocol == "pop3":
		return 110
	case useTLS:
		return 993
	default:
		return 143
	}
}

func invalid(field, format string, args ...any) error {
	return &order.ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "pretty" {
		return invalid("log_format", "must be text or pretty, got %q", c.LogFormat)
	}

	m := c.Mailbox
	if m.Protocol != "pop3" && m.Protocol != "imap" {
		return invalid("mailbox.protocol", "must be pop3 or imap, got %q", m.Protocol)
	}
	if m.Host == "" {
		return invalid("mailbox.host", "is required")
	}
	if m.Port < 1 || m.Port > 65535 {
		return invalid("mailbox.port", "out of range: %d", m.Port)
	}
	if m.Username == "" {
		return invalid("mailbox.username", "is required")
	}
	if m.Password == "" {
		return invalid("mailbox.password", "is required (or set %s)", PasswordEnv)
	}
	if m.LookbackDays < 0 {
		return invalid("mailbox.lookback_days", "must not be negative")
	}

	for _, s := range c.Senders {
		if strings.TrimSpace(s) == "" {
			return invalid("senders", "blank entry")
		}
	}
	return nil
}
