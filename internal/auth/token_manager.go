package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/otogram/backend/internal/models"
)

var (
	// ErrTokenExpired indicates the bearer token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates the bearer token is malformed or its signature does not match.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSigningKeyUnavailable indicates the server has no signing secret configured.
	ErrSigningKeyUnavailable = errors.New("token signing key unavailable")
)

// DefaultTokenTTL is how long an issued bearer token remains valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Identity is the caller resolved from a verified token.
type Identity struct {
	UserID string
	Role   models.Role
}

// Claims is the JWT payload issued to users.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies stateless bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	NowFunc func() time.Time
}

// NewTokenManager constructs a TokenManager signing with HS256.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token embedding the user id and role.
func (m *TokenManager) Issue(userID string, role models.Role) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrSigningKeyUnavailable
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id must be provided")
	}
	if !role.Valid() {
		return "", fmt.Errorf("issue token: invalid role %q", role)
	}

	now := m.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the identity it carries.
func (m *TokenManager) Verify(token string) (Identity, error) {
	if len(m.secret) == 0 {
		return Identity{}, ErrSigningKeyUnavailable
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return Identity{UserID: claims.Subject, Role: role}, nil
}

func (m *TokenManager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now().UTC()
}
