package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is empty")
)

// Config is the server configuration. Scalars come from the environment;
// list-valued settings come from an optional YAML file.
type Config struct {
	Port          string        `yaml:"-"`
	DatabaseURL   string        `yaml:"-"`
	JWTSecret     string        `yaml:"-"`
	TokenTTL      time.Duration `yaml:"-"`
	CookieSecure  bool          `yaml:"-"`
	// TrustProxy honours X-Forwarded-For/X-Real-IP. Only enable behind a
	// proxy that overwrites them.
	TrustProxy    bool          `yaml:"trust_proxy"`
	PublicBaseURL string        `yaml:"public_base_url"`

	GoogleMapsAPIKey string `yaml:"-"`
	MapboxToken      string `yaml:"-"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	SMTP  SMTPConfig  `yaml:"smtp"`
	Mongo MongoConfig `yaml:"mongo"`
	Meili MeiliConfig `yaml:"meilisearch"`

	CORS      CORSConfig      `yaml:"cors"`
	Parcels   ParcelsConfig   `yaml:"parcels"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type SMTPConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"-"`
	Pass   string `yaml:"-"`
	Sender string `yaml:"sender"`
}

type MongoConfig struct {
	URI      string `yaml:"-"`
	Database string `yaml:"database"`
}

type MeiliConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"-"`
	Index  string `yaml:"index"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ParcelsConfig struct {
	// ExcludedZoning lists min_min_go codes never offered on /coordinates.
	ExcludedZoning []string `yaml:"excluded_zoning"`
	MaxFeatures    int      `yaml:"max_features"`
}

type RateLimitConfig struct {
	AuthPerMinute int `yaml:"auth_per_minute"`
	AuthBurst     int `yaml:"auth_burst"`
}

type UploadsConfig struct {
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	MaxFiles     int      `yaml:"max_files"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ReindexSpec string `yaml:"reindex_spec"`
	PurgeSpec   string `yaml:"purge_spec"`
}

func Default() *Config {
	return &Config{
		Port:          "5050",
		TokenTTL:      24 * time.Hour,
		PublicBaseURL: "http://localhost:5050",
		LogLevel:      "info",
		SMTP: SMTPConfig{
			Port: 465,
		},
		Mongo: MongoConfig{
			Database: "manzil_media",
		},
		Meili: MeiliConfig{
			Index: "listings",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:5174",
			},
		},
		Parcels: ParcelsConfig{
			ExcludedZoning: []string{"GB", "PS", "RD", "UT", "CM"},
			MaxFeatures:    5000,
		},
		RateLimit: RateLimitConfig{
			AuthPerMinute: 10,
			AuthBurst:     5,
		},
		Uploads: UploadsConfig{
			MaxFileBytes: 10 << 20,
			MaxFiles:     20,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			ReindexSpec: "@every 5m",
			PurgeSpec:   "@hourly",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// it does not exist) and the process environment, in that order.
func Load(path string) (*Config, error) {
	return LoadFrom(path, os.Getenv)
}

func LoadFrom(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("JWT_SECRET", &c.JWTSecret)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)
	str("GOOGLE_MAPS_API_KEY", &c.GoogleMapsAPIKey)
	str("MAPBOX_TOKEN", &c.MapboxToken)
	str("LOG_LEVEL", &c.LogLevel)
	str("SMTP_HOST", &c.SMTP.Host)
	str("SMTP_USER", &c.SMTP.User)
	str("SMTP_PASS", &c.SMTP.Pass)
	str("SMTP_SENDER", &c.SMTP.Sender)
	str("MONGO_URI", &c.Mongo.URI)
	str("MONGO_DB", &c.Mongo.Database)
	str("MEILI_HOST", &c.Meili.Host)
	str("MEILI_API_KEY", &c.Meili.APIKey)

	if v := getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.SMTP.Port = n
	}
	if v := getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKEN_TTL: %w", err)
		}
		c.TokenTTL = d
	}
	if v := getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		c.CookieSecure = b
	}
	if v := getenv("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRUST_PROXY: %w", err)
		}
		c.TrustProxy = b
	}
	if v := getenv("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_JSON: %w", err)
		}
		c.LogJSON = b
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL))
	}
	return errors.Join(errs...)
}

// MailEnabled reports whether OTP mail can be delivered over SMTP.
func (c *Config) MailEnabled() bool { return c.SMTP.Host != "" && c.SMTP.Sender != "" }

func (c *Config) MediaEnabled() bool { return c.Mongo.URI != "" }

func (c *Config) SearchEnabled() bool { return c.Meili.Host != "" }
