package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_AUTH_SESSION_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "23:00", cfg.NightMode.DefaultStart)
	assert.Equal(t, "07:00", cfg.NightMode.DefaultEnd)
	assert.Equal(t, "Asia/Seoul", cfg.App.DefaultTimezone)
	assert.Equal(t, 720*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Kafka.PublishTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_AUTH_SESSION_SECRET", "s3cret")
	t.Setenv("APP_DATABASE_URL", "postgres://u:p@localhost:5432/dpp")
	t.Setenv("APP_NIGHT_MODE_DEFAULT_START", "22:30")
	t.Setenv("APP_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("APP_REDIS_REPORT_TTL", "1h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/dpp", cfg.Database.URL)
	assert.Equal(t, "22:30", cfg.NightMode.DefaultStart)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Redis.ReportTTL)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "auth:\n  session_secret: fromfile\nserver:\n  listen_addr: \":9000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.Auth.SessionSecret)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{URL: "postgresql://localhost/dpp"},
			Auth:      AuthConfig{SessionSecret: "x", SessionTTL: time.Hour},
			NightMode: NightModeConfig{DefaultStart: "23:00", DefaultEnd: "07:00"},
			App:       AppConfig{DefaultTimezone: "UTC"},
			RateLimit: RateLimitConfig{RPS: 1, Burst: 1},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"mysql url":    func(c *Config) { c.Database.URL = "mysql://localhost/dpp" },
		"no secret":    func(c *Config) { c.Auth.SessionSecret = " " },
		"bad window":   func(c *Config) { c.NightMode.DefaultEnd = "7:00" },
		"bad timezone": func(c *Config) { c.App.DefaultTimezone = "Mars/Olympus" },
		"zero burst":   func(c *Config) { c.RateLimit.Burst = 0 },
		"negative ttl": func(c *Config) { c.Auth.SessionTTL = -time.Second },
		"zero publish": func(c *Config) { c.Kafka = KafkaConfig{Brokers: []string{"k1:9092"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
