package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mail      MailConfig      `yaml:"mail"`
	Event     EventConfig     `yaml:"event"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Campaign  CampaignConfig  `yaml:"campaign"`
	Logging   LoggingConfig   `yaml:"logging"`
	Site      SiteConfig      `yaml:"site"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds the PostgreSQL connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection used for sessions, rate limiting
// and the campaign lock. Empty disables all three Redis paths.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MailConfig holds outgoing mail settings
type MailConfig struct {
	Provider             string    `yaml:"provider"` // "ses" or "log"
	FromName             string    `yaml:"from_name"`
	FromEmail            string    `yaml:"from_email"`
	ReplyTo              string    `yaml:"reply_to"`
	AdminEmail           string    `yaml:"admin_email"`
	TemplateDir          string    `yaml:"template_dir"`
	NotifyTimeoutSeconds int       `yaml:"notify_timeout_seconds"`
	SES                  SESConfig `yaml:"ses"`
}

// NotifyTimeout bounds one background notification.
func (c MailConfig) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES credentials
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// EventConfig describes the conference registrations are taken for
type EventConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Date         string `yaml:"date"`
	Location     string `yaml:"location"`
	NumberPrefix string `yaml:"number_prefix"`
}

// AuthConfig holds the dashboard login
type AuthConfig struct {
	AdminEmail      string `yaml:"admin_email"`
	PasswordHash    string `yaml:"password_hash"` // bcrypt
	CookieName      string `yaml:"cookie_name"`
	CookieSecure    bool   `yaml:"cookie_secure"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
}

// SessionTTL is how long a dashboard session lives.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// RateLimitConfig holds the per-IP fixed windows
type RateLimitConfig struct {
	Disabled     bool        `yaml:"disabled"`
	Contact      LimitConfig `yaml:"contact"`
	Registration LimitConfig `yaml:"registration"`
	Newsletter   LimitConfig `yaml:"newsletter"`
	General      LimitConfig `yaml:"general"`
}

// LimitConfig is one fixed window.
type LimitConfig struct {
	Limit         int `yaml:"limit"`
	WindowMinutes int `yaml:"window_minutes"`
}

// Window returns the window length.
func (l LimitConfig) Window() time.Duration { return time.Duration(l.WindowMinutes) * time.Minute }

// CampaignConfig holds bulk send settings
type CampaignConfig struct {
	IntervalMillis int `yaml:"interval_millis"`
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
}

// Interval is the pause between two recipients.
func (c CampaignConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMillis) * time.Millisecond
}

// LockTTL bounds how long one campaign may hold the send lock.
func (c CampaignConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level               string `yaml:"level"`
	Pretty              bool   `yaml:"pretty"`
	DisablePIIRedaction bool   `yaml:"disable_pii_redaction"`
}

// SiteConfig holds public site details used in email links
type SiteConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 30
	}

	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "log"
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = "Tech Grid Summit"
	}
	if cfg.Mail.FromEmail == "" {
		cfg.Mail.FromEmail = "noreply@techgridsummit.com"
	}
	if cfg.Mail.NotifyTimeoutSeconds == 0 {
		cfg.Mail.NotifyTimeoutSeconds = 30
	}
	if cfg.Mail.SES.Region == "" {
		cfg.Mail.SES.Region = "us-east-1"
	}
	if cfg.Mail.SES.TimeoutSeconds == 0 {
		cfg.Mail.SES.TimeoutSeconds = 30
	}

	if cfg.Event.ID == "" {
		cfg.Event.ID = "tech_grid_ai_finance_2025"
	}
	if cfg.Event.Name == "" {
		cfg.Event.Name = "Tech Grid Summit: AI in Finance 2025"
	}
	if cfg.Event.NumberPrefix == "" {
		cfg.Event.NumberPrefix = "TGS"
	}

	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "site_session"
	}
	if cfg.Auth.SessionTTLHours == 0 {
		cfg.Auth.SessionTTLHours = 24
	}

	defaultLimit(&cfg.RateLimit.Contact, 5, 15)
	defaultLimit(&cfg.RateLimit.Registration, 3, 60)
	defaultLimit(&cfg.RateLimit.Newsletter, 10, 60)
	defaultLimit(&cfg.RateLimit.General, 100, 15)

	if cfg.Campaign.LockTTLMinutes == 0 {
		cfg.Campaign.LockTTLMinutes = 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Site.Name == "" {
		cfg.Site.Name = "Tech Grid Summit"
	}
	if cfg.Site.URL == "" {
		cfg.Site.URL = "http://localhost:3000"
	}
	cfg.Site.URL = strings.TrimRight(cfg.Site.URL, "/")
}

func defaultLimit(l *LimitConfig, limit, minutes int) {
	if l.Limit == 0 {
		l.Limit = limit
	}
	if l.WindowMinutes == 0 {
		l.WindowMinutes = minutes
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first. A missing config file is not an
// error: defaults plus the environment are enough to run.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")

	if err := setInt(&cfg.Server.Port, "PORT"); err != nil {
		return nil, err
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	setString(&cfg.Mail.Provider, "MAIL_PROVIDER")
	setString(&cfg.Mail.FromEmail, "MAIL_FROM")
	setString(&cfg.Mail.AdminEmail, "ADMIN_EMAIL")
	setString(&cfg.Mail.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.Mail.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.Mail.SES.Region, "AWS_SES_REGION")

	setString(&cfg.Event.ID, "EVENT_ID")
	setString(&cfg.Event.Name, "EVENT_NAME")
	setString(&cfg.Event.Date, "EVENT_DATE")
	setString(&cfg.Event.Location, "EVENT_LOCATION")

	setString(&cfg.Auth.AdminEmail, "ADMIN_LOGIN_EMAIL")
	setString(&cfg.Auth.PasswordHash, "ADMIN_PASSWORD_HASH")
	if cfg.Auth.AdminEmail == "" {
		cfg.Auth.AdminEmail = cfg.Mail.AdminEmail
	}

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Site.URL, "SITE_URL")
	cfg.Site.URL = strings.TrimRight(cfg.Site.URL, "/")

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
