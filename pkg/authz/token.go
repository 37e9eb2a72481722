package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carrying an identity. The subject is the user.
type Claims struct {
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies HS256 bearer tokens.
type TokenVerifier struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenVerifier creates a verifier for tokens signed with key. Empty
// issuer or audience disables that check.
func NewTokenVerifier(key []byte, issuer, audience string) (*TokenVerifier, error) {
	if len(key) == 0 {
		return nil, errors.New("token signing key is empty")
	}
	return &TokenVerifier{key: key, issuer: issuer, audience: audience, now: time.Now}, nil
}

// Verify parses and validates token and returns the identity it carries.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return Identity{User: claims.Subject, Groups: claims.Groups}, nil
}

// Sign issues a token for id valid for ttl.
func (v *TokenVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Groups: id.Groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.User,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
