// Package auth issues and verifies the HS256 access tokens carried by API callers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

const (
	defaultTTL = time.Hour
	clockSkew  = 30 * time.Second
)

// Identity is who a token speaks for.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

func (i Identity) IsAdmin() bool { return i.Role == enums.UserRoleAdmin }

// Claims is the JWT body.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}
}

// Tokens signs and checks tokens for one issuer.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokens(cfg config.JWTConfig) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.Secret)
	issuer := strings.TrimSpace(cfg.Issuer)
	if secret == "" || issuer == "" {
		return nil, errors.New("jwt secret and issuer are required")
	}
	t := &Tokens{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	if cfg.ExpirationMinutes > 0 {
		t.ttl = time.Duration(cfg.ExpirationMinutes) * time.Minute
	}
	t.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	return t, nil
}

// Issue signs a token for id that expires after the configured TTL.
func (t *Tokens) Issue(id Identity) (string, error) {
	if id.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !id.Role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", id.Role)
	}
	now := t.now()
	claims := Claims{
		UserID: id.UserID,
		Email:  strings.TrimSpace(id.Email),
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the caller identity.
func (t *Tokens) Verify(raw string) (Identity, error) {
	var claims Claims
	if _, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return Identity{}, err
	}
	if claims.UserID == uuid.Nil || !claims.Role.IsValid() {
		return Identity{}, errors.New("token carries no usable identity")
	}
	return claims.Identity(), nil
}
