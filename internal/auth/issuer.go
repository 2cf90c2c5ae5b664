package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/acmecorp/docs-mcp/internal/scope"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is requested.
const DefaultTokenTTL = 8 * time.Hour

// IssueRequest describes a token to mint. A negative TTL produces a token
// that is already expired.
type IssueRequest struct {
	Subject string
	Scopes  []string
	TTL     time.Duration
	ID      string
}

type issuedClaims struct {
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer mints HMAC-signed caller tokens.
type Issuer struct {
	method jwt.SigningMethod
	secret []byte
	now    func() time.Time
}

// NewIssuer returns an Issuer for an HMAC key.
func NewIssuer(key VerificationKey) (*Issuer, error) {
	method, ok := jwt.GetSigningMethod(key.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("issuing tokens requires an HMAC algorithm, got %q", key.Algorithm)
	}
	secret, ok := key.key.([]byte)
	if !ok || len(secret) == 0 {
		return nil, errors.New("issuer key has no HMAC secret")
	}
	return &Issuer{method: method, secret: secret, now: time.Now}, nil
}

// Issue signs a token for req and returns it with its claims.
func (i *Issuer) Issue(req IssueRequest) (string, Claims, error) {
	ttl := req.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	scopes := req.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	now := i.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims := issuedClaims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, Claims{
		Subject:   req.Subject,
		Scopes:    scope.New(scopes...),
		ID:        id,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}
