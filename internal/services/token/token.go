// Package token issues, validates and revokes personal access tokens.
package token

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/auth"
	"onloc/internal/models"
	"onloc/internal/repository"
)

const (
	defaultLabel  = "unknown"
	maxLabelRunes = 255
)

type Service struct {
	tokens repository.TokenRepository
	users  repository.UserRepository
	signer *auth.TokenSigner
	now    func() time.Time
	lg     *zap.SugaredLogger
}

func NewService(tokens repository.TokenRepository, users repository.UserRepository, signer *auth.TokenSigner, lg *zap.SugaredLogger) *Service {
	return &Service{tokens: tokens, users: users, signer: signer, now: time.Now, lg: lg}
}

var _ auth.TokenValidator = (*Service)(nil)

// Issue creates a token for user and returns the stored record together
// with the bearer string. The bearer string is never retrievable again.
func (s *Service) Issue(ctx context.Context, user *models.User, label string) (*models.Token, string, error) {
	now := s.now().UTC()
	raw, expiresAt, err := s.signer.Sign(user.ID, now)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	t := &models.Token{
		UserID:    user.ID,
		Name:      normalizeLabel(label),
		TokenHash: auth.HashToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.tokens.CreateToken(ctx, t); err != nil {
		return nil, "", apperr.Internal(err)
	}
	s.lg.Infow("token issued", "user_id", user.ID, "token_id", t.ID)
	return t, raw, nil
}

// Validate resolves a bearer string to its user and marks the token used.
func (s *Service) Validate(ctx context.Context, raw string) (*models.User, *models.Token, error) {
	invalid := apperr.Unauthorized("invalid token")

	userID, err := s.signer.Verify(raw)
	if err != nil {
		return nil, nil, invalid
	}
	t, err := s.tokens.TokenByHash(ctx, auth.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, invalid
	}
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	now := s.now().UTC()
	if t.UserID != userID || (t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)) {
		return nil, nil, invalid
	}

	u, err := s.users.UserByID(ctx, t.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, invalid
	}
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	if err := s.tokens.TouchToken(ctx, t.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// revoked between lookup and touch
			return nil, nil, invalid
		}
		return nil, nil, apperr.Internal(err)
	}
	t.LastUsedAt = &now
	return u, t, nil
}

func (s *Service) List(ctx context.Context, user *models.User) ([]models.Token, error) {
	out, err := s.tokens.TokensForUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// Revoke deletes one of user's tokens. Tokens of other users are reported
// as not found.
func (s *Service) Revoke(ctx context.Context, user *models.User, id uint) error {
	err := s.tokens.DeleteToken(ctx, user.ID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("token not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	s.lg.Infow("token revoked", "user_id", user.ID, "token_id", id)
	return nil
}

// RevokeCurrent deletes the token the request authenticated with.
func (s *Service) RevokeCurrent(ctx context.Context, user *models.User, current *models.Token) error {
	if current == nil {
		return apperr.Unauthorized("no token in use")
	}
	return s.Revoke(ctx, user, current.ID)
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return defaultLabel
	}
	if utf8.RuneCountInString(label) > maxLabelRunes {
		label = string([]rune(label)[:maxLabelRunes])
	}
	return label
}
