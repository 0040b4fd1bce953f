package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env  string `mapstructure:"APP_ENV"`
	Port int    `mapstructure:"PORT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SessionBackend selects where the per-client user id is persisted: memory or redis.
	SessionBackend string        `mapstructure:"SESSION_BACKEND"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	SessionIdle    time.Duration `mapstructure:"SESSION_IDLE"`
	CookieSecure   bool          `mapstructure:"COOKIE_SECURE"`

	EnableSwitchUser bool `mapstructure:"-"`
	SeedSampleData   bool `mapstructure:"SEED_SAMPLE_DATA"`
	BcryptCost       int  `mapstructure:"BCRYPT_COST"`

	UploadDir           string        `mapstructure:"UPLOAD_DIR"`
	UploadRetryAttempts int           `mapstructure:"UPLOAD_RETRY_ATTEMPTS"`
	UploadTimeout       time.Duration `mapstructure:"UPLOAD_TIMEOUT"`
	MaxBodyBytes        int64         `mapstructure:"MAX_BODY_BYTES"`

	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	LoginRateLimit  int           `mapstructure:"LOGIN_RATE_LIMIT"`
	LoginRateWindow time.Duration `mapstructure:"LOGIN_RATE_WINDOW"`

	CORSAllowedOrigins []string `mapstructure:"-"`

	OTELEndpoint     string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `mapstructure:"TRACE_SAMPLE_RATIO"`

	Email EmailConfig `mapstructure:",squash"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"EMAIL_ENABLED"`
	Host     string `mapstructure:"EMAIL_HOST"`
	Port     int    `mapstructure:"EMAIL_PORT"`
	Username string `mapstructure:"EMAIL_USERNAME"`
	Password string `mapstructure:"EMAIL_PASSWORD"`
	From     string `mapstructure:"EMAIL_FROM"`
}

var defaults = map[string]any{
	"APP_ENV":                     "dev",
	"PORT":                        8080,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"SESSION_BACKEND":             "memory",
	"SESSION_TTL":                 "168h",
	"SESSION_IDLE":                "2h",
	"COOKIE_SECURE":               false,
	"SEED_SAMPLE_DATA":            false,
	"BCRYPT_COST":                 10,
	"UPLOAD_DIR":                  "./data/uploads/receipts",
	"UPLOAD_RETRY_ATTEMPTS":       3,
	"UPLOAD_TIMEOUT":              "10s",
	"MAX_BODY_BYTES":              6 << 20,
	"CACHE_TTL":                   "5s",
	"LOGIN_RATE_LIMIT":            10,
	"LOGIN_RATE_WINDOW":           "1m",
	"CORS_ALLOWED_ORIGINS":        "http://localhost:3000",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"TRACE_SAMPLE_RATIO":          1.0,
	"EMAIL_ENABLED":               false,
	"EMAIL_HOST":                  "",
	"EMAIL_PORT":                  587,
	"EMAIL_USERNAME":              "",
	"EMAIL_PASSWORD":              "",
	"EMAIL_FROM":                  "",
}

// Load reads configuration from, in increasing priority: built-in defaults,
// the optional YAML file at path, a .env file in the working directory, and
// the process environment.
func Load(path string) (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	// switching users is a demo shortcut: on in dev unless turned off explicitly
	if v.IsSet("ENABLE_SWITCH_USER") {
		cfg.EnableSwitchUser = v.GetBool("ENABLE_SWITCH_USER")
	} else {
		cfg.EnableSwitchUser = cfg.Env == "dev"
	}

	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.SessionBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be memory or redis, got %q", c.SessionBackend))
	}
	if c.UploadRetryAttempts < 1 {
		errs = append(errs, errors.New("UPLOAD_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.UploadTimeout <= 0 {
		errs = append(errs, errors.New("UPLOAD_TIMEOUT must be positive"))
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		errs = append(errs, errors.New("EMAIL_HOST and EMAIL_FROM are required when EMAIL_ENABLED=true"))
	}

	return errors.Join(errs...)
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
