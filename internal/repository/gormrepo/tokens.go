package gormrepo

import (
	"context"
	"time"

	"onloc/internal/models"
)

func (s *Store) CreateToken(ctx context.Context, t *models.Token) error {
	return translate(s.db.WithContext(ctx).Create(t).Error)
}

func (s *Store) TokenByHash(ctx context.Context, hash string) (*models.Token, error) {
	var t models.Token
	if err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) TouchToken(ctx context.Context, id uint, at time.Time) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Token{}).Where("id = ?", id).UpdateColumn("last_used_at", at.UTC())
	return updated(db, &models.Token{}, id, res)
}

func (s *Store) TokensForUser(ctx context.Context, userID uint) ([]models.Token, error) {
	tokens := make([]models.Token, 0)
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc, id asc").Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Store) DeleteToken(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Token{})
	return affected(res)
}
