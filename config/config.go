package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the league service settings.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	R2        R2Config        `yaml:"r2"`
	Discord   DiscordConfig   `yaml:"discord"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	LogLevel  string          `yaml:"log_level"`
	// CatalogFile overrides the embedded deck type and achievement catalog.
	CatalogFile string `yaml:"catalog_file"`
	// UploadDir holds screenshots when R2 is not configured.
	UploadDir string `yaml:"upload_dir"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	ServiceToken   string   `yaml:"service_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig selects the persistence backend: "postgres" or "memory".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type R2Config struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
	CDNBaseURL      string `yaml:"cdn_base_url"`
}

// Enabled reports whether evidence uploads are configured.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != ""
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

func (c DiscordConfig) Enabled() bool {
	return c.Token != "" && c.ChannelID != ""
}

type JobsConfig struct {
	RetryInterval     time.Duration `yaml:"retry_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type RateLimitConfig struct {
	SubmissionsPerMinute int `yaml:"submissions_per_minute"`
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		HTTP:      HTTPConfig{Addr: ":5200", AllowedOrigins: []string{"http://localhost:3000"}},
		Store:     StoreConfig{Driver: "postgres"},
		Jobs:      JobsConfig{RetryInterval: time.Minute, ReconcileInterval: 15 * time.Minute},
		RateLimit: RateLimitConfig{SubmissionsPerMinute: 20},
		LogLevel:  "info",
		UploadDir: "uploads",
	}
}

// Load reads the optional YAML file at path, loads .env if present and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LEAGUE_SERVICE_TOKEN", &c.HTTP.ServiceToken)
	str("STORE_DRIVER", &c.Store.Driver)
	str("DATABASE_URL", &c.Store.DSN)
	str("CLOUDFLARE_ACCOUNT_ID", &c.R2.AccountID)
	str("R2_ACCESS_KEY_ID", &c.R2.AccessKeyID)
	str("R2_ACCESS_KEY_SECRET", &c.R2.AccessKeySecret)
	str("R2_BUCKET_NAME", &c.R2.Bucket)
	str("CDN_BASE_URL", &c.R2.CDNBaseURL)
	str("DISCORD_BOT_TOKEN", &c.Discord.Token)
	str("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)
	str("LOG_LEVEL", &c.LogLevel)
	str("CATALOG_FILE", &c.CatalogFile)
	str("UPLOAD_DIR", &c.UploadDir)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.HTTP.AllowedOrigins = origins
	}

	dur := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	if err := dur("RETRY_INTERVAL", &c.Jobs.RetryInterval); err != nil {
		return err
	}
	if err := dur("RECONCILE_INTERVAL", &c.Jobs.ReconcileInterval); err != nil {
		return err
	}

	if v := os.Getenv("SUBMISSION_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUBMISSION_RATE_PER_MINUTE: %w", err)
		}
		c.RateLimit.SubmissionsPerMinute = n
	}
	return nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.HTTP.ServiceToken == "" {
		errs = append(errs, errors.New("LEAGUE_SERVICE_TOKEN is required"))
	}
	if c.R2.AccountID != "" && (c.R2.AccessKeyID == "" || c.R2.AccessKeySecret == "" || c.R2.Bucket == "") {
		errs = append(errs, errors.New("R2 credentials and bucket are required when CLOUDFLARE_ACCOUNT_ID is set"))
	}
	if c.Discord.Token != "" && c.Discord.ChannelID == "" {
		errs = append(errs, errors.New("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set"))
	}
	if c.Jobs.RetryInterval <= 0 || c.Jobs.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("job intervals must be positive"))
	}
	if c.RateLimit.SubmissionsPerMinute <= 0 {
		errs = append(errs, errors.New("SUBMISSION_RATE_PER_MINUTE must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
