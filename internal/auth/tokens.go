package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenSigner produces the bearer strings handed to clients. The JWT
// envelope is only a fast pre-check; a token is valid only while its hash
// is stored server-side.
type TokenSigner struct {
	key []byte
	ttl time.Duration
}

// NewTokenSigner returns a signer for HS256 tokens. A zero ttl issues tokens
// without expiry.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{key: []byte(secret), ttl: ttl}
}

// Sign returns a fresh bearer string for userID and its expiry, if any.
func (s *TokenSigner) Sign(userID uint, now time.Time) (string, *time.Time, error) {
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatUint(uint64(userID), 10),
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(now),
	}
	var expiresAt *time.Time
	if s.ttl > 0 {
		exp := now.Add(s.ttl).UTC()
		expiresAt = &exp
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", nil, err
	}
	return raw, expiresAt, nil
}

// Verify checks signature, method and expiry and returns the subject.
func (s *TokenSigner) Verify(raw string) (uint, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// HashToken is the only form of a bearer string that is persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
