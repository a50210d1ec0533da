package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tbourn/go-prompt-manager/internal/config"
)

var (
	// ErrInvalidToken is returned for malformed, expired, mis-signed or
	// otherwise unacceptable session tokens.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrRevoked is returned when a token's jti is on the denylist.
	ErrRevoked = errors.New("session revoked")

	// ErrRevocationUnavailable is returned by Revoke when no denylist is
	// configured.
	ErrRevocationUnavailable = errors.New("session revocation unavailable")
)

// Sessions issues and verifies HS256 session tokens. The token subject is the
// caller's Identity; each token carries a unique jti so it can be revoked on
// its own.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	deny   Denylist
	now    func() time.Time
}

// NewSessions builds a Sessions from configuration. deny may be nil, in which
// case tokens cannot be revoked before they expire.
func NewSessions(cfg config.SessionConfig, deny Denylist) *Sessions {
	return &Sessions{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		deny:   deny,
		now:    time.Now,
	}
}

// CanRevoke reports whether a denylist is configured.
func (s *Sessions) CanRevoke() bool { return s.deny != nil }

// Issue signs a token for subject and returns it together with its expiry.
func (s *Sessions) Issue(subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("subject must not be empty")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return tok, exp.Truncate(time.Second), nil
}

// parse validates signature, algorithm, issuer and expiry.
func (s *Sessions) parse(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// Verify checks token and returns the identity it was issued for.
func (s *Sessions) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if s.deny != nil {
		revoked, err := s.deny.Contains(ctx, claims.ID)
		if err != nil {
			return "", fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return "", ErrRevoked
		}
	}
	return Identity(claims.Subject), nil
}

// Revoke places token's jti on the denylist until the token would have
// expired anyway.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if s.deny == nil {
		return ErrRevocationUnavailable
	}
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.deny.Add(ctx, claims.ID, ttl)
}
