package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Photos    PhotoConfig     `yaml:"photos"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	BoltPath string `yaml:"bolt_path"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiry     time.Duration `yaml:"jwt_expiry"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

type PhotoConfig struct {
	Dir           string        `yaml:"dir"`
	BaseURL       string        `yaml:"base_url"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	MaxBytes      int64         `yaml:"max_bytes"`
}

type ReconcileConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	RequeueBuffer  int           `yaml:"requeue_buffer"`
	RequeueBackoff time.Duration `yaml:"requeue_backoff"`
}

type RateLimitConfig struct {
	ReadingsPerSecond float64 `yaml:"readings_per_second"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":5000"},
		Storage: StorageConfig{
			Driver:   DriverPostgres,
			DSN:      "host=localhost port=5432 user=postgres password=postgres dbname=fieldmiles sslmode=disable",
			BoltPath: "data/fieldmiles.db",
		},
		Auth: AuthConfig{
			JWTSecret:  "dev_secret",
			JWTExpiry:  72 * time.Hour,
			SessionTTL: 7 * 24 * time.Hour,
		},
		Photos: PhotoConfig{
			Dir:           "photos",
			BaseURL:       "/photos",
			UploadTimeout: 10 * time.Second,
			MaxBytes:      10 << 20,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts:    3,
			RequeueBuffer:  100,
			RequeueBackoff: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			ReadingsPerSecond: 1,
			Burst:             5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies FIELDMILES_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.HTTP.Addr = getEnv("FIELDMILES_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Storage.Driver = getEnv("FIELDMILES_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getEnv("FIELDMILES_DB_DSN", cfg.Storage.DSN)
	cfg.Storage.BoltPath = getEnv("FIELDMILES_BOLT_PATH", cfg.Storage.BoltPath)
	cfg.Auth.JWTSecret = getEnv("FIELDMILES_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpiry = getEnvDuration("FIELDMILES_JWT_EXPIRY", cfg.Auth.JWTExpiry)
	cfg.Photos.Dir = getEnv("FIELDMILES_PHOTOS_DIR", cfg.Photos.Dir)
	cfg.Photos.BaseURL = getEnv("FIELDMILES_PHOTOS_BASE_URL", cfg.Photos.BaseURL)
	cfg.Photos.UploadTimeout = getEnvDuration("FIELDMILES_UPLOAD_TIMEOUT", cfg.Photos.UploadTimeout)
	cfg.Reconcile.MaxAttempts = getEnvInt("FIELDMILES_RECONCILE_MAX_ATTEMPTS", cfg.Reconcile.MaxAttempts)
	cfg.Log.Level = getEnv("FIELDMILES_LOG_LEVEL", cfg.Log.Level)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	case DriverBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("storage.bolt_path is required for the bolt driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret can't be empty")
	}
	if c.Reconcile.MaxAttempts < 1 {
		return errors.New("reconcile.max_attempts must be at least 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
