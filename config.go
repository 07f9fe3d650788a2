package authflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every tunable of the engine. It is cloned by [Builder] and
// treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// ResetLinkBase is prefixed to reset tokens to build the link handed to
	// the Notifier, e.g. "https://app.example.com/reset-password?token=".
	ResetLinkBase string
}

/*
====================================
JWT CONFIG
====================================
*/

// SigningKey holds the key material of one token kind.
//
// With "hs256", Secret is the shared HMAC secret and PublicKey is unused.
// With "ed25519", Secret is the private key (optional on verify-only
// engines) and PublicKey the matching public key.
type SigningKey struct {
	Secret    []byte
	PublicKey []byte
}

// JWTConfig configures the three token kinds. Each kind has its own key and
// lifetime, so an access token never verifies as a refresh or reset token.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"

	Access  SigningKey
	Refresh SigningKey
	Reset   SigningKey

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	Issuer   string
	Audience string
	Leeway   time.Duration
}

const minHMACSecretBytes = 32

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures Argon2id hashing and the password length policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int // bytes
	MaxLength int // bytes

	// UpgradeOnLogin re-hashes legacy or weaker hashes after a successful
	// login.
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the fixed-window limiters. A zero maximum
// disables the corresponding limiter.
type RateLimitConfig struct {
	EnableIPThrottle       bool
	MaxLoginAttempts       int
	LoginCooldownDuration  time.Duration
	MaxForgotAttempts      int
	ForgotCooldownDuration time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config with production defaults and no key
// material. Keys must be supplied before [Builder.Build].
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			ResetTTL:      15 * time.Minute,
			Leeway:        0,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:       false,
			MaxLoginAttempts:       5,
			LoginCooldownDuration:  15 * time.Minute,
			MaxForgotAttempts:      3,
			ForgotCooldownDuration: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Access = cloneKey(cfg.JWT.Access)
	out.JWT.Refresh = cloneKey(cfg.JWT.Refresh)
	out.JWT.Reset = cloneKey(cfg.JWT.Reset)
	return out
}

func cloneKey(k SigningKey) SigningKey {
	return SigningKey{
		Secret:    cloneBytes(k.Secret),
		PublicKey: cloneBytes(k.PublicKey),
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. Error messages name the field
// but never include key material.
func (c *Config) Validate() error {
	// JWT
	method := strings.ToLower(strings.TrimSpace(c.JWT.SigningMethod))
	if method != "hs256" && method != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}

	for _, ttl := range []struct {
		name  string
		value time.Duration
	}{
		{"AccessTTL", c.JWT.AccessTTL},
		{"RefreshTTL", c.JWT.RefreshTTL},
		{"ResetTTL", c.JWT.ResetTTL},
	} {
		if ttl.value <= 0 {
			return fmt.Errorf("JWT %s must be > 0", ttl.name)
		}
		if ttl.value%time.Second != 0 {
			return fmt.Errorf("JWT %s must be a whole number of seconds", ttl.name)
		}
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	keys := []struct {
		name string
		key  SigningKey
	}{
		{"Access", c.JWT.Access},
		{"Refresh", c.JWT.Refresh},
		{"Reset", c.JWT.Reset},
	}
	switch method {
	case "hs256":
		for _, k := range keys {
			if len(k.key.Secret) == 0 {
				return fmt.Errorf("JWT %s secret is required", k.name)
			}
			if len(k.key.Secret) < minHMACSecretBytes {
				return fmt.Errorf("JWT %s secret must be at least %d bytes", k.name, minHMACSecretBytes)
			}
		}
		for i := 0; i < len(keys); i++ {
			for j := i + 1; j < len(keys); j++ {
				if bytes.Equal(keys[i].key.Secret, keys[j].key.Secret) {
					return fmt.Errorf("JWT %s and %s secrets must differ", keys[i].name, keys[j].name)
				}
			}
		}
	case "ed25519":
		for _, k := range keys {
			if len(k.key.PublicKey) == 0 {
				return fmt.Errorf("JWT %s public key is required for ed25519", k.name)
			}
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Rate limits
	if c.RateLimit.MaxLoginAttempts < 0 || c.RateLimit.MaxForgotAttempts < 0 {
		return errors.New("RateLimit maximums must be >= 0")
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldownDuration <= 0 {
		return errors.New("RateLimit LoginCooldownDuration must be > 0 when login limiting is enabled")
	}
	if c.RateLimit.MaxForgotAttempts > 0 && c.RateLimit.ForgotCooldownDuration <= 0 {
		return errors.New("RateLimit ForgotCooldownDuration must be > 0 when forgot limiting is enabled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ResetLinkBase != "" && strings.ContainsAny(c.ResetLinkBase, " \t\r\n") {
		return errors.New("ResetLinkBase must not contain whitespace")
	}

	return nil
}
