package gormrepo

import (
	"context"

	"onloc/internal/models"
)

func (s *Store) CreateSetting(ctx context.Context, st *models.Setting) error {
	return translate(s.db.WithContext(ctx).Create(st).Error)
}

func (s *Store) SettingByID(ctx context.Context, id uint) (*models.Setting, error) {
	var st models.Setting
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

// SettingByKey uses struct conditions so the reserved word "key" is quoted
// by the dialect.
func (s *Store) SettingByKey(ctx context.Context, key string) (*models.Setting, error) {
	var st models.Setting
	if err := s.db.WithContext(ctx).Where(&models.Setting{Key: key}).First(&st).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]models.Setting, error) {
	settings := make([]models.Setting, 0)
	if err := s.db.WithContext(ctx).Order("id asc").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) UpdateSetting(ctx context.Context, st *models.Setting) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Setting{}).Where("id = ?", st.ID).
		Select("key", "value", "updated_at").
		Updates(st)
	return updated(db, &models.Setting{}, st.ID, res)
}

func (s *Store) DeleteSetting(ctx context.Context, id uint) error {
	return affected(s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Setting{}))
}
