package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm of a [Manager].
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256; issuer and verifier share PrivateKey.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Kind          Kind
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock used for issuing and verifying. Defaults to time.Now.
	Now func() time.Time
}

// Manager issues and verifies tokens of a single [Kind].
//
// Manager instances are immutable after [NewManager] and safe for concurrent use.
type Manager struct {
	config Config
}

// Token is an issued credential together with the metadata callers need for
// ledgers and cookies.
type Token struct {
	Value     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager for cfg.Kind.
func NewManager(cfg Config) (*Manager, error) {
	switch cfg.Kind {
	case KindAccess, KindRefresh, KindReset:
	default:
		return nil, fmt.Errorf("unsupported token kind %q", cfg.Kind)
	}
	if cfg.TTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.TTL%time.Second != 0 {
		return nil, fmt.Errorf("%w: ttl must be a whole number of seconds", ErrInvalidTTL)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, fmt.Errorf("%s token: %w", cfg.Kind, ErrEmptySecret)
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// Kind reports the token kind this manager serves.
func (j *Manager) Kind() Kind {
	return j.config.Kind
}

// TTL reports the lifetime of tokens issued by this manager.
func (j *Manager) TTL() time.Duration {
	return j.config.TTL
}

// IssueAccess signs an access token for subject carrying role.
func (j *Manager) IssueAccess(subject, role string) (Token, error) {
	if j.config.Kind != KindAccess {
		return Token{}, ErrManagerKind
	}
	registered, token := j.registered(subject)
	return j.sign(&AccessClaims{Role: role, Kind: KindAccess, RegisteredClaims: registered}, token)
}

// IssueRefresh signs a refresh token that carries only the subject.
func (j *Manager) IssueRefresh(subject string) (Token, error) {
	if j.config.Kind != KindRefresh {
		return Token{}, ErrManagerKind
	}
	registered, token := j.registered(subject)
	return j.sign(&RefreshClaims{Kind: KindRefresh, RegisteredClaims: registered}, token)
}

// IssueReset signs a single-purpose password reset token for subject.
func (j *Manager) IssueReset(subject string) (Token, error) {
	if j.config.Kind != KindReset {
		return Token{}, ErrManagerKind
	}
	registered, token := j.registered(subject)
	return j.sign(&ResetClaims{Kind: KindReset, RegisteredClaims: registered}, token)
}

// ParseAccess verifies tokenStr and returns its access claims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	return parseKind[AccessClaims](j, tokenStr)
}

// ParseRefresh verifies tokenStr and returns its refresh claims.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	return parseKind[RefreshClaims](j, tokenStr)
}

// ParseReset verifies tokenStr and returns its reset claims.
func (j *Manager) ParseReset(tokenStr string) (*ResetClaims, error) {
	return parseKind[ResetClaims](j, tokenStr)
}

func parseKind[T any, PT interface {
	*T
	kindedClaims
}](j *Manager, tokenStr string) (PT, error) {
	claims := PT(new(T))
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.tokenKind() != j.config.Kind {
		return nil, ErrTokenKind
	}
	if claims.subject() == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

func (j *Manager) registered(subject string) (jwt.RegisteredClaims, Token) {
	now := j.config.Now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(j.config.TTL))

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	return claims, Token{
		ID:        claims.ID,
		Subject:   subject,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}
}

func (j *Manager) sign(claims jwt.Claims, meta Token) (Token, error) {
	if meta.Subject == "" {
		return Token{}, errors.New("token subject is empty")
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return Token{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return Token{}, err
	}
	meta.Value = signed
	return meta, nil
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return j.keyBytesToVerifyKey(key)
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.getVerifyKey()
	})
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return fmt.Errorf("%w: missing iat", ErrTokenInvalid)
	}
	if issuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}

	return nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 manager has no private key")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(j.config.PublicKey)
	default:
		return j.config.PrivateKey, nil
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(key)
	default:
		return key, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
