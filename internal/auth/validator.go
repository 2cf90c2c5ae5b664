package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/acmecorp/docs-mcp/internal/scope"
)

// ScopeClaim is the JWT claim holding the caller's scopes as a JSON array
// of strings.
const ScopeClaim = "scope"

// Claims is the verified content of a caller token.
type Claims struct {
	Subject   string
	Scopes    scope.Set
	ExpiresAt time.Time
	IssuedAt  time.Time
	ID        string
}

// Validator verifies bearer tokens against a single configured key. It has
// no side effects and is safe for concurrent use.
type Validator struct {
	key VerificationKey
	now func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator returns a Validator for key.
func NewValidator(key VerificationKey, opts ...ValidatorOption) *Validator {
	v := &Validator{key: key, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Algorithm returns the configured signing algorithm.
func (v *Validator) Algorithm() string {
	return v.key.Algorithm
}

// Validate verifies rawToken and returns its claims. Errors wrap one of
// ErrMissingToken, ErrInvalidSignature, ErrTokenExpired or ErrMalformedClaims.
func (v *Validator) Validate(rawToken string) (Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Claims{}, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.key.Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	mapClaims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(rawToken, mapClaims, func(*jwt.Token) (any, error) {
		if v.key.key == nil {
			return nil, errors.New("no verification key configured")
		}
		return v.key.key, nil
	})
	if err != nil {
		return Claims{}, v.classify(rawToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSignature
	}

	return decodeClaims(mapClaims)
}

func (v *Validator) classify(rawToken string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		// An elapsed expiry wins over a bad signature so the outcome for an
		// expired token never depends on which key signed it.
		if v.expiredUnverified(rawToken) {
			return fmt.Errorf("%w: expiry elapsed", ErrTokenExpired)
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

func (v *Validator) expiredUnverified(rawToken string) bool {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, mapClaims); err != nil {
		return false
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !v.now().Before(exp.Time)
}

func decodeClaims(mapClaims jwt.MapClaims) (Claims, error) {
	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: exp must be a numeric date", ErrMalformedClaims)
	}

	claims := Claims{ExpiresAt: exp.Time}

	if claims.Subject, err = optionalString(mapClaims, "sub"); err != nil {
		return Claims{}, err
	}
	if claims.ID, err = optionalString(mapClaims, "jti"); err != nil {
		return Claims{}, err
	}

	iat, err := mapClaims.GetIssuedAt()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: iat must be a numeric date", ErrMalformedClaims)
	}
	if iat != nil {
		claims.IssuedAt = iat.Time
	}

	if raw, ok := mapClaims[ScopeClaim]; ok {
		if claims.Scopes, err = decodeScopes(raw); err != nil {
			return Claims{}, err
		}
	}

	return claims, nil
}

func optionalString(mapClaims jwt.MapClaims, name string) (string, error) {
	raw, ok := mapClaims[name]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedClaims, name)
	}
	return value, nil
}

func decodeScopes(raw any) (scope.Set, error) {
	switch values := raw.(type) {
	case []string:
		return scope.New(values...), nil
	case []any:
		scopes := make([]string, 0, len(values))
		for _, value := range values {
			s, ok := value.(string)
			if !ok {
				return scope.Set{}, fmt.Errorf("%w: %s entries must be strings", ErrMalformedClaims, ScopeClaim)
			}
			scopes = append(scopes, s)
		}
		return scope.New(scopes...), nil
	default:
		return scope.Set{}, fmt.Errorf("%w: %s must be a list", ErrMalformedClaims, ScopeClaim)
	}
}
