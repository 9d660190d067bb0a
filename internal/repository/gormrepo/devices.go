package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"onloc/internal/models"
)

func (s *Store) CreateDevice(ctx context.Context, d *models.Device) error {
	return translate(s.db.WithContext(ctx).Create(d).Error)
}

func (s *Store) DeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *Store) DevicesForUser(ctx context.Context, userID uint) ([]models.Device, error) {
	devices := make([]models.Device, 0)
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id asc").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *Store) UpdateDevice(ctx context.Context, d *models.Device) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Device{}).Where("id = ?", d.ID).
		Select("name", "icon", "updated_at").
		Updates(d)
	return updated(db, &models.Device{}, d.ID, res)
}

func (s *Store) DeleteDevice(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.Location{}).Error; err != nil {
			return err
		}
		return affected(tx.Where("id = ?", id).Delete(&models.Device{}))
	})
}
