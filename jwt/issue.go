package jwt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issue signs an arbitrary claim set with HS256 and secret. The issued-at and
// expiry claims are injected here, so claims must not already contain them.
// Issue does not mutate claims.
func Issue(claims map[string]any, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	if _, ok := claims["exp"]; ok {
		return "", ErrReservedClaim
	}
	if _, ok := claims["iat"]; ok {
		return "", ErrReservedClaim
	}

	now := time.Now()
	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = jwt.NewNumericDate(now)
	payload["exp"] = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
}

// IssueFor is Issue with a relative TTL string such as "15m", "30d" or "3600".
func IssueFor(claims map[string]any, secret []byte, ttl string) (string, error) {
	d, err := ParseTTL(ttl)
	if err != nil {
		return "", err
	}
	return Issue(claims, secret, d)
}

// Verify checks the signature and expiry of an HS256 token and returns its claims,
// including the injected exp and iat values.
func Verify(tokenStr string, secret []byte) (map[string]any, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

// ParseTTL parses a relative duration. It accepts Go duration strings ("90s",
// "1h30m"), day and week suffixes ("30d", "2w") and bare second counts ("3600").
// Sub-second precision is rejected because token timestamps are whole seconds.
func ParseTTL(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTTL)
	}

	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if unit, ok := longUnits[s[len(s)-1]]; ok {
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, raw)
		}
		d = time.Duration(n) * unit
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, raw)
		}
		d = parsed
	}

	if d <= 0 || d%time.Second != 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTTL, raw)
	}
	return d, nil
}

var longUnits = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}
