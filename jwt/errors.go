package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid reports a malformed, tampered or wrongly signed token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired reports a correctly signed token whose exp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenKind reports a valid token presented to a manager of another kind.
	ErrTokenKind = fmt.Errorf("%w: unexpected token kind", ErrTokenInvalid)
	// ErrReservedClaim is returned when caller claims already contain exp or iat.
	ErrReservedClaim = errors.New("claims must not contain exp or iat")
	// ErrEmptySecret is returned when a signing secret is missing.
	ErrEmptySecret = errors.New("signing secret is empty")
	// ErrInvalidTTL is returned for zero, negative or unparsable TTLs.
	ErrInvalidTTL = errors.New("invalid ttl")
	// ErrManagerKind is returned when a manager is asked to issue a kind it is not configured for.
	ErrManagerKind = errors.New("manager not configured for this token kind")
)

// classify folds golang-jwt parse errors into the two verification outcomes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) {
		return err
	}
	for _, other := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenNotValidYet,
	} {
		if errors.Is(err, other) {
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	// Only report expiry when nothing else is wrong with the token.
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}
