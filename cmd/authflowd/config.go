package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eventlyze/authflow"
	"github.com/eventlyze/authflow/httpapi"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/samber/oops"
)

// Config is the daemon configuration. Values come from an optional YAML file
// overlaid with environment variables. Secrets are never read from YAML or
// flags: each has an env variable and a *_FILE variant pointing at a mounted
// secret.
type Config struct {
	Env       string          `yaml:"env" env:"AUTHFLOW_ENV" env-default:"production"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Cookie    CookieConfig    `yaml:"cookie"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reset     ResetConfig     `yaml:"reset"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"AUTHFLOW_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"AUTHFLOW_LOG_FORMAT" env-default:"json"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"AUTHFLOW_HTTP_ADDR" env-default:":8080"`
	Prefix          string        `yaml:"prefix" env:"AUTHFLOW_HTTP_PREFIX" env-default:"/api/v1/auth"`
	TrustedIPHeader string        `yaml:"trusted_ip_header" env:"AUTHFLOW_TRUSTED_IP_HEADER"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"AUTHFLOW_HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"AUTHFLOW_HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"AUTHFLOW_HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

type CookieConfig struct {
	Secure   bool   `yaml:"secure" env:"AUTHFLOW_COOKIE_SECURE" env-default:"true"`
	SameSite string `yaml:"same_site" env:"AUTHFLOW_COOKIE_SAMESITE" env-default:"strict"`
	Domain   string `yaml:"domain" env:"AUTHFLOW_COOKIE_DOMAIN"`
}

type DBConfig struct {
	URL     string `yaml:"-" env:"AUTHFLOW_DATABASE_URL"`
	URLFile string `yaml:"url_file" env:"AUTHFLOW_DATABASE_URL_FILE"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"AUTHFLOW_REDIS_ADDR" env-default:"localhost:6379"`
	DB           int    `yaml:"db" env:"AUTHFLOW_REDIS_DB" env-default:"0"`
	Password     string `yaml:"-" env:"AUTHFLOW_REDIS_PASSWORD"`
	PasswordFile string `yaml:"password_file" env:"AUTHFLOW_REDIS_PASSWORD_FILE"`
}

type JWTConfig struct {
	Issuer     string        `yaml:"issuer" env:"AUTHFLOW_JWT_ISSUER"`
	Audience   string        `yaml:"audience" env:"AUTHFLOW_JWT_AUDIENCE"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"AUTHFLOW_JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"AUTHFLOW_JWT_REFRESH_TTL" env-default:"720h"`
	ResetTTL   time.Duration `yaml:"reset_ttl" env:"AUTHFLOW_JWT_RESET_TTL" env-default:"15m"`
	Leeway     time.Duration `yaml:"leeway" env:"AUTHFLOW_JWT_LEEWAY" env-default:"0s"`

	AccessSecret      string `yaml:"-" env:"AUTHFLOW_JWT_ACCESS_SECRET"`
	AccessSecretFile  string `yaml:"access_secret_file" env:"AUTHFLOW_JWT_ACCESS_SECRET_FILE"`
	RefreshSecret     string `yaml:"-" env:"AUTHFLOW_JWT_REFRESH_SECRET"`
	RefreshSecretFile string `yaml:"refresh_secret_file" env:"AUTHFLOW_JWT_REFRESH_SECRET_FILE"`
	ResetSecret       string `yaml:"-" env:"AUTHFLOW_JWT_RESET_SECRET"`
	ResetSecretFile   string `yaml:"reset_secret_file" env:"AUTHFLOW_JWT_RESET_SECRET_FILE"`
}

type PasswordConfig struct {
	Memory      uint32 `yaml:"memory_kb" env:"AUTHFLOW_PASSWORD_MEMORY_KB" env-default:"65536"`
	Time        uint32 `yaml:"time" env:"AUTHFLOW_PASSWORD_TIME" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"AUTHFLOW_PASSWORD_PARALLELISM" env-default:"2"`
	MinLength   int    `yaml:"min_length" env:"AUTHFLOW_PASSWORD_MIN_LENGTH" env-default:"10"`
}

type RateLimitConfig struct {
	EnableIPThrottle  bool          `yaml:"ip_throttle" env:"AUTHFLOW_RATE_IP_THROTTLE" env-default:"false"`
	MaxLoginAttempts  int           `yaml:"max_login_attempts" env:"AUTHFLOW_RATE_MAX_LOGIN" env-default:"5"`
	LoginCooldown     time.Duration `yaml:"login_cooldown" env:"AUTHFLOW_RATE_LOGIN_COOLDOWN" env-default:"15m"`
	MaxForgotAttempts int           `yaml:"max_forgot_attempts" env:"AUTHFLOW_RATE_MAX_FORGOT" env-default:"3"`
	ForgotCooldown    time.Duration `yaml:"forgot_cooldown" env:"AUTHFLOW_RATE_FORGOT_COOLDOWN" env-default:"1h"`
}

type ResetConfig struct {
	LinkBase         string `yaml:"link_base" env:"AUTHFLOW_RESET_LINK_BASE"`
	WebhookURL       string `yaml:"webhook_url" env:"AUTHFLOW_RESET_WEBHOOK_URL"`
	WebhookToken     string `yaml:"-" env:"AUTHFLOW_RESET_WEBHOOK_TOKEN"`
	WebhookTokenFile string `yaml:"webhook_token_file" env:"AUTHFLOW_RESET_WEBHOOK_TOKEN_FILE"`
	// LogLinks writes reset links to the log. Development only.
	LogLinks bool `yaml:"log_links" env:"AUTHFLOW_RESET_LOG_LINKS" env-default:"false"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"AUTHFLOW_AUDIT_ENABLED" env-default:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"AUTHFLOW_METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"AUTHFLOW_METRICS_PATH" env-default:"/metrics"`
}

// LoadConfig reads path when given (or CONFIG_PATH), then overlays the
// environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	return &cfg, nil
}

// resolveSecret returns the contents of file when set, else value. A single
// trailing newline from the file is dropped.
func resolveSecret(name, value, file string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		s := strings.TrimSuffix(string(raw), "\n")
		s = strings.TrimSuffix(s, "\r")
		return s, nil
	}
	return value, nil
}

func (c *Config) databaseURL() (string, error) {
	url, err := resolveSecret("database url", c.DB.URL, c.DB.URLFile)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("AUTHFLOW_DATABASE_URL or AUTHFLOW_DATABASE_URL_FILE is required")
	}
	return url, nil
}

func (c *Config) redisPassword() (string, error) {
	return resolveSecret("redis password", c.Redis.Password, c.Redis.PasswordFile)
}

func (c *Config) webhookToken() (string, error) {
	return resolveSecret("webhook token", c.Reset.WebhookToken, c.Reset.WebhookTokenFile)
}

// EngineConfig builds the engine configuration, loading signing secrets.
func (c *Config) EngineConfig() (authflow.Config, error) {
	cfg := authflow.DefaultConfig()

	secrets := []struct {
		name  string
		value string
		file  string
		dst   *authflow.SigningKey
	}{
		{"access secret", c.JWT.AccessSecret, c.JWT.AccessSecretFile, &cfg.JWT.Access},
		{"refresh secret", c.JWT.RefreshSecret, c.JWT.RefreshSecretFile, &cfg.JWT.Refresh},
		{"reset secret", c.JWT.ResetSecret, c.JWT.ResetSecretFile, &cfg.JWT.Reset},
	}
	for _, s := range secrets {
		v, err := resolveSecret(s.name, s.value, s.file)
		if err != nil {
			return authflow.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
		}
		if v == "" {
			return authflow.Config{}, oops.Code("CONFIG_INVALID").Errorf("%s is required", s.name)
		}
		s.dst.Secret = []byte(v)
	}

	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	cfg.JWT.ResetTTL = c.JWT.ResetTTL
	cfg.JWT.Leeway = c.JWT.Leeway

	cfg.Password.Memory = c.Password.Memory
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.Password.MinLength = c.Password.MinLength

	cfg.RateLimit = authflow.RateLimitConfig{
		EnableIPThrottle:       c.RateLimit.EnableIPThrottle,
		MaxLoginAttempts:       c.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration:  c.RateLimit.LoginCooldown,
		MaxForgotAttempts:      c.RateLimit.MaxForgotAttempts,
		ForgotCooldownDuration: c.RateLimit.ForgotCooldown,
	}

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	cfg.ResetLinkBase = c.Reset.LinkBase

	if err := cfg.Validate(); err != nil {
		return authflow.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// CookieSettings maps the cookie section onto the transport cookie.
func (c *Config) CookieSettings() (httpapi.CookieConfig, error) {
	cookie := httpapi.DefaultCookieConfig()
	cookie.Path = c.HTTP.Prefix
	cookie.Secure = c.Cookie.Secure
	cookie.Domain = c.Cookie.Domain

	switch strings.ToLower(c.Cookie.SameSite) {
	case "", "strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "none":
		if !cookie.Secure {
			return httpapi.CookieConfig{}, errors.New("cookie same_site=none requires secure=true")
		}
		cookie.SameSite = http.SameSiteNoneMode
	default:
		return httpapi.CookieConfig{}, fmt.Errorf("unknown cookie same_site %q", c.Cookie.SameSite)
	}
	return cookie, nil
}

// NewLogger builds the process logger.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
