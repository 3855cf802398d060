package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the core runtime configuration for the service.
// Values come from an optional YAML file and APP_* environment
// variables (APP_DATABASE_URL, APP_AUTH_SESSION_SECRET, ...), with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Auth      AuthConfig      `mapstructure:"auth"`
	NightMode NightModeConfig `mapstructure:"night_mode"`
	App       AppConfig       `mapstructure:"app"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Rollup    RollupConfig    `mapstructure:"rollup"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// AdminConfig holds the bootstrap admin credentials used for the
// catalogue management endpoints.
type AdminConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type AuthConfig struct {
	// GoogleClientID is the audience expected in Google ID tokens.
	GoogleClientID string `mapstructure:"google_client_id"`
	GoogleCertsURL string `mapstructure:"google_certs_url"`

	// SessionSecret signs the session tokens handed out at login.
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// NightModeConfig is the window given to users who never configured one.
type NightModeConfig struct {
	DefaultStart string `mapstructure:"default_start"`
	DefaultEnd   string `mapstructure:"default_end"`
}

type AppConfig struct {
	// DefaultTimezone is used for night-mode classification when the
	// user has no timezone of their own.
	DefaultTimezone string `mapstructure:"default_timezone"`
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RedisConfig enables the daily report cache when Addr is set.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	ReportTTL time.Duration `mapstructure:"report_ttl"`
}

// KafkaConfig enables the ingestion event stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type RollupConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the optional file at path and from the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma separated broker lists arrive as a single string from the env.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")

	// Bound explicitly so AutomaticEnv picks them up during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.report_ttl", "12h")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "dolphinpod.usage.ingested")
	v.SetDefault("kafka.publish_timeout", "2s")

	v.SetDefault("admin.user", "admin")
	v.SetDefault("admin.password", "changeme")

	v.SetDefault("auth.google_client_id", "")
	v.SetDefault("auth.google_certs_url", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", "720h")

	v.SetDefault("night_mode.default_start", "23:00")
	v.SetDefault("night_mode.default_end", "07:00")
	v.SetDefault("app.default_timezone", "Asia/Seoul")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("ratelimit.rps", 0.5)
	v.SetDefault("ratelimit.burst", 3)

	// Five past midnight, every day.
	v.SetDefault("rollup.schedule", "5 0 * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	dsn := strings.TrimSpace(c.Database.URL)
	if dsn != "" && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return errors.New("database.url must be a postgres:// or postgresql:// URL")
	}
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return errors.New("auth.session_secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive, got %s", c.Auth.SessionTTL)
	}
	if !validClock(c.NightMode.DefaultStart) || !validClock(c.NightMode.DefaultEnd) {
		return fmt.Errorf("night_mode default window %q-%q must be HH:MM", c.NightMode.DefaultStart, c.NightMode.DefaultEnd)
	}
	if _, err := time.LoadLocation(c.App.DefaultTimezone); err != nil {
		return fmt.Errorf("app.default_timezone: %w", err)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.PublishTimeout <= 0 {
		return fmt.Errorf("kafka.publish_timeout must be positive, got %s", c.Kafka.PublishTimeout)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}
