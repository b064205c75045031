package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned by the verify methods for every failure mode:
// bad signature, malformed token, wrong algorithm, expiry. Callers must not
// branch on the reason, so none is given.
var ErrTokenInvalid = errors.New("token invalid")

const tokenIssuer = "rentalgw"

// SessionClaims is the signed session token payload.
type SessionClaims struct {
	Email          string          `json:"email"`
	Name           string          `json:"name,omitempty"`
	Picture        string          `json:"picture,omitempty"`
	ProviderTokens json.RawMessage `json:"tokens,omitempty"`
	jwt.RegisteredClaims
}

// StateClaims binds one login attempt's PKCE verifier into the OAuth state
// parameter. The state round-trips through the provider's redirect URL, so no
// short-lived cookie has to survive the cross-site hop.
type StateClaims struct {
	Verifier string `json:"v"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HMAC (HS256) tokens. One codec backs both the
// session token and the OAuth state token; only the ttl differs.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec constructs a codec. The secret length is enforced here as
// well as in config validation so the codec cannot be built degraded.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < MinSessionSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSessionSecretLen)
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// IssueSession mints a signed session token valid for ttl.
func (c *TokenCodec) IssueSession(id Identity, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Email:            id.Email,
		Name:             id.Name,
		Picture:          id.Picture,
		ProviderTokens:   id.ProviderTokens,
		RegisteredClaims: c.registered(ttl),
	}
	return c.sign(claims)
}

// VerifySession validates a session token and returns the identity it encodes.
func (c *TokenCodec) VerifySession(token string) (*Identity, error) {
	var claims SessionClaims
	if err := c.parse(token, &claims); err != nil {
		return nil, err
	}
	return &Identity{
		Email:          claims.Email,
		Name:           claims.Name,
		Picture:        claims.Picture,
		ProviderTokens: claims.ProviderTokens,
	}, nil
}

// IssueState mints a signed state token embedding the PKCE verifier.
func (c *TokenCodec) IssueState(verifier string, ttl time.Duration) (string, error) {
	claims := StateClaims{
		Verifier:         verifier,
		RegisteredClaims: c.registered(ttl),
	}
	return c.sign(claims)
}

// VerifyState validates a state token and recovers the PKCE verifier.
func (c *TokenCodec) VerifyState(token string) (string, error) {
	var claims StateClaims
	if err := c.parse(token, &claims); err != nil {
		return "", err
	}
	if claims.Verifier == "" {
		return "", ErrTokenInvalid
	}
	return claims.Verifier, nil
}

func (c *TokenCodec) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *TokenCodec) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *TokenCodec) parse(token string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !tok.Valid {
		return ErrTokenInvalid
	}
	return nil
}
