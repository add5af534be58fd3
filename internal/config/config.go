package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	APIBaseURL        string        `mapstructure:"API_BASE_URL"`
	Role              string        `mapstructure:"ROLE"`
	TokenStore        string        `mapstructure:"TOKEN_STORE"`
	TokenFile         string        `mapstructure:"TOKEN_FILE"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	PollInterval      time.Duration `mapstructure:"POLL_INTERVAL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	MetricsEnabled    bool          `mapstructure:"METRICS_ENABLED"`
	NotificationStore string        `mapstructure:"NOTIFICATION_STORE"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	UploadLimit       string        `mapstructure:"UPLOAD_LIMIT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "API_BASE_URL", "ROLE", "TOKEN_STORE", "TOKEN_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "POLL_INTERVAL", "CORS_ORIGINS",
	"METRICS_ENABLED", "NOTIFICATION_STORE", "BODY_LIMIT", "UPLOAD_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads configuration from a .env file in the working directory, if
// present, and the environment. Environment values win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ROLE", "pharmacy")
	v.SetDefault("TOKEN_STORE", "file")
	v.SetDefault("TOKEN_FILE", defaultTokenFile())
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("NOTIFICATION_STORE", "memory")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "10M")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	cfg.TokenStore = strings.ToLower(cfg.TokenStore)
	cfg.NotificationStore = strings.ToLower(cfg.NotificationStore)

	return cfg, nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".pharmacy-portal", "tokens.json")
	}
	return filepath.Join(home, ".pharmacy-portal", "tokens.json")
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any component is configured to use Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.TokenStore == "postgres" || c.NotificationStore == "postgres"
}

// Level returns the zerolog level for LOG_LEVEL, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must use https in production")
	}

	switch c.TokenStore {
	case "file":
		if c.TokenFile == "" {
			return fmt.Errorf("TOKEN_FILE is required when TOKEN_STORE is \"file\"")
		}
	case "memory", "postgres":
	default:
		return fmt.Errorf("TOKEN_STORE must be \"file\", \"memory\", or \"postgres\", got %q", c.TokenStore)
	}

	switch c.NotificationStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("NOTIFICATION_STORE must be \"memory\" or \"postgres\", got %q", c.NotificationStore)
	}

	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when TOKEN_STORE or NOTIFICATION_STORE is \"postgres\"")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.Role == "" {
		return fmt.Errorf("ROLE is required")
	}
	return nil
}
