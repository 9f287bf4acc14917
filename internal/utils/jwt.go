package utils // package utils provides the token codec, password hashing and random token helpers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
	"github.com/google/uuid"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/apperr"
	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/model"
)

const (
	// TokenIssuer and TokenAudience identify this service in every access token.
	TokenIssuer   = "micropost-api"
	TokenAudience = "micropost-api-clients"

	// MinSecretLen is the minimum signing secret length in bytes.
	MinSecretLen = 32

	bearerPrefix = "Bearer "
)

// ErrWeakSecret is returned by NewTokenCodec for secrets shorter than MinSecretLen.
var ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)

// Claims is the payload of an access token: subject id, email and roles on
// top of the registered iat/exp/iss/aud claims.
type Claims struct {
	Email string       `json:"email"`
	Roles []model.Role `json:"roles"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// AccessToken is a signed JWT plus the metadata returned to clients.
type AccessToken struct {
	Token     string    // the serialized JWT string
	ExpiresIn int64     // lifetime in seconds
	ExpiresAt time.Time // the UTC expiration time
}

// TokenCodec issues and verifies HS256 access tokens. Only HS256 is accepted
// on verification so a token cannot pick its own algorithm.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser

	// sigOnly checks the signature and algorithm but no claims.
	sigOnly *jwt.Parser
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, used by tests to simulate expiry.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

// NewTokenCodec validates the secret and TTL and returns a codec.
func NewTokenCodec(secret string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	c := &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	c.sigOnly = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return c, nil
}

// TTL returns the configured access token lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue signs an access token for u.
func (c *TokenCodec) Issue(u model.User) (AccessToken, error) {
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := Claims{
		Email: u.Email,
		Roles: u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(), // distinct tokens within one second blacklist independently
			Subject:   strconv.FormatUint(u.ID, 10),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ExpiresIn: int64(c.ttl / time.Second), ExpiresAt: exp}, nil
}

// Verify checks signature and claims. Failures are classified as
// ErrTokenExpired, ErrTokenNotYetValid or ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	raw := StripBearer(token)
	if raw == "" {
		return nil, apperr.Wrap(apperr.CodeInvalidToken, "missing token", nil)
	}
	claims := &Claims{}
	tok, err := c.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	switch {
	case err == nil && tok.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperr.Wrap(apperr.CodeTokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, apperr.Wrap(apperr.CodeTokenNotYetValid, "token not yet valid", err)
	default:
		return nil, apperr.Wrap(apperr.CodeInvalidToken, "invalid token", err)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidToken, "invalid token", err)
	}
	return claims, nil
}

// Authentic reports whether token was signed by this codec, ignoring expiry
// and every other claim. It returns the token's expiry, if any.
func (c *TokenCodec) Authentic(token string) (time.Time, bool) {
	raw := StripBearer(token)
	if raw == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	tok, err := c.sigOnly.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, true
	}
	return claims.ExpiresAt.Time, true
}

// ExpiryOf decodes the exp claim without verifying the signature. It is only
// used to size blacklist entries, never to authenticate.
func ExpiryOf(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(StripBearer(token), &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// StripBearer removes an optional "Bearer " prefix and surrounding spaces.
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}
