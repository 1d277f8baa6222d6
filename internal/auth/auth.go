package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretBytes is the shortest HMAC secret accepted for signing.
const MinSecretBytes = 32

// Resolver turns a bearer credential into a Principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// Claims represents JWT claims carried by a session token.
type Claims struct {
	Tenant  string           `json:"tenant"`
	Role    string           `json:"role"`
	License string           `json:"license,omitempty"`
	Elev    []string         `json:"elev,omitempty"`
	ElevExp *jwt.NumericDate `json:"elev_exp,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthority issues and verifies HS256 session tokens.
type TokenAuthority struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ Resolver = (*TokenAuthority)(nil)

// NewTokenAuthority validates the secret and returns an authority for issuer.
func NewTokenAuthority(secret, issuer string) (*TokenAuthority, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidInput, MinSecretBytes)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidInput)
	}
	return &TokenAuthority{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for p valid for ttl. It returns the expiry alongside the token.
func (a *TokenAuthority) Issue(p Principal, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.TenantID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal id and tenant are required", ErrInvalidInput)
	}
	if _, ok := rolePermissions[p.Role]; !ok {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrUnknownRole, p.Role)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: ttl must be greater than zero", ErrInvalidInput)
	}

	now := a.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Tenant:  p.TenantID,
		Role:    string(p.Role),
		License: p.LicenseNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if p.Elevation != nil && len(p.Elevation.Permissions) > 0 {
		for _, perm := range p.Elevation.Permissions {
			if !Elevatable(perm) {
				return "", time.Time{}, fmt.Errorf("%w: %s cannot be granted by elevation", ErrInvalidInput, perm)
			}
			claims.Elev = append(claims.Elev, string(perm))
		}
		claims.ElevExp = jwt.NewNumericDate(p.Elevation.ExpiresAt.UTC())
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Resolve verifies token and rebuilds the Principal it carries.
func (a *TokenAuthority) Resolve(_ context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if err := a.validateClaims(claims); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	p := Principal{
		ID:            claims.Subject,
		TenantID:      claims.Tenant,
		Role:          role,
		LicenseNumber: claims.License,
	}
	if len(claims.Elev) > 0 {
		elev := &Elevation{ExpiresAt: claims.ElevExp.Time}
		for _, raw := range claims.Elev {
			elev.Permissions = append(elev.Permissions, Permission(raw))
		}
		p.Elevation = elev
	}
	return p, nil
}

func (a *TokenAuthority) validateClaims(claims *Claims) error {
	if claims.Issuer != a.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.Tenant) == "" {
		return errors.New("tenant missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := a.now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	if len(claims.Elev) > 0 {
		if claims.ElevExp == nil {
			return errors.New("elevation without expiry")
		}
		for _, raw := range claims.Elev {
			if !Elevatable(Permission(raw)) {
				return fmt.Errorf("permission %s cannot be elevated", raw)
			}
		}
	}
	return nil
}
