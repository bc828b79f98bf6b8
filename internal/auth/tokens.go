package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("token invalid")

const issuer = "manzil-backend"

type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the HS256 session tokens carried in the
// token cookie.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT signing key cannot be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue returns a signed token for userID and its expiry.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	c := &claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken implements middleware.TokenParser.
func (s *TokenService) ParseToken(raw string) (string, error) {
	tok, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.UserID == "" {
		return "", ErrTokenInvalid
	}
	return c.UserID, nil
}
