package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/booking"
)

const (
	RoleStaff = "staff"
	RoleAdmin = "admin"

	defaultIssuer = "rentguru"
	defaultTTL    = time.Hour
)

var ErrEmptySecret = errors.New("security: token secret is empty")

// UserClaims are the claims carried by API and channel tokens.
type UserClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c UserClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenManager{secret: []byte(secret), Issuer: defaultIssuer, TTL: defaultTTL}, nil
}

func (m *TokenManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Issue signs a token for the user.
func (m *TokenManager) Issue(userID string, roles ...string) (string, error) {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := m.now()
	claims := UserClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify implements policies.TokenVerifier. Staff and admin roles map to a staff actor.
func (m *TokenManager) Verify(ctx context.Context, raw string) (booking.Actor, error) {
	var claims UserClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return booking.Actor{}, fmt.Errorf("%w: %w", policies.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return booking.Actor{}, policies.ErrInvalidToken
	}
	if m.Issuer != "" && claims.Issuer != m.Issuer {
		return booking.Actor{}, fmt.Errorf("%w: unexpected issuer %q", policies.ErrInvalidToken, claims.Issuer)
	}
	return booking.Actor{
		UserID: claims.UserID,
		Staff:  claims.HasRole(RoleStaff) || claims.HasRole(RoleAdmin),
	}, nil
}

var _ policies.TokenVerifier = (*TokenManager)(nil)
