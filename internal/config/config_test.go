package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"
  allowed_origins: ["https://techgridsummit.com"]

mail:
  provider: ses
  from_email: "hello@techgridsummit.com"
  admin_email: "admin@techgridsummit.com"
  ses:
    region: eu-west-1
    configuration_set: site

event:
  id: summit_2026
  name: "Summit 2026"
  number_prefix: SUM

rate_limit:
  contact:
    limit: 2
    window_minutes: 1

campaign:
  interval_millis: 250

site:
  url: "https://techgridsummit.com/"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, []string{"https://techgridsummit.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "ses", cfg.Mail.Provider)
	assert.Equal(t, "admin@techgridsummit.com", cfg.Mail.AdminEmail)
	assert.Equal(t, "eu-west-1", cfg.Mail.SES.Region)
	assert.Equal(t, "site", cfg.Mail.SES.ConfigurationSet)

	assert.Equal(t, "summit_2026", cfg.Event.ID)
	assert.Equal(t, "SUM", cfg.Event.NumberPrefix)

	assert.Equal(t, 2, cfg.RateLimit.Contact.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Contact.Window())
	// Unset buckets still get their defaults.
	assert.Equal(t, 3, cfg.RateLimit.Registration.Limit)
	assert.Equal(t, time.Hour, cfg.RateLimit.Registration.Window())

	assert.Equal(t, 250*time.Millisecond, cfg.Campaign.Interval())
	assert.Equal(t, "https://techgridsummit.com", cfg.Site.URL)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  pretty: true\n"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout())
	assert.Equal(t, "log", cfg.Mail.Provider)
	assert.Equal(t, 30*time.Second, cfg.Mail.NotifyTimeout())
	assert.Equal(t, "tech_grid_ai_finance_2025", cfg.Event.ID)
	assert.Equal(t, "TGS", cfg.Event.NumberPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, 5, cfg.RateLimit.Contact.Limit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Contact.Window())
	assert.Equal(t, 10, cfg.RateLimit.Newsletter.Limit)
	assert.Equal(t, 100, cfg.RateLimit.General.Limit)
	assert.Equal(t, 30*time.Minute, cfg.Campaign.LockTTL())
	assert.Equal(t, time.Duration(0), cfg.Campaign.Interval())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://file/db"
mail:
  admin_email: "file@techgridsummit.com"
`)

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "8081")
	t.Setenv("ADMIN_EMAIL", "env@techgridsummit.com")
	t.Setenv("ADMIN_LOGIN_EMAIL", "")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EVENT_NAME", "Env Summit")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "env@techgridsummit.com", cfg.Mail.AdminEmail)
	// The dashboard login falls back to the admin address.
	assert.Equal(t, "env@techgridsummit.com", cfg.Auth.AdminEmail)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "Env Summit", cfg.Event.Name)
}

func TestLoadFromEnv_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadFromEnv_BadPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := LoadFromEnv("")
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}
