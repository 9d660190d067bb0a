package gormrepo

import (
	"context"

	"onloc/internal/models"
	"onloc/internal/repository"
)

func (s *Store) CreateLocation(ctx context.Context, l *models.Location) error {
	return translate(s.db.WithContext(ctx).Create(l).Error)
}

func (s *Store) LocationByID(ctx context.Context, id uint) (*models.Location, error) {
	var l models.Location
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (s *Store) UpdateLocation(ctx context.Context, l *models.Location) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Location{}).Where("id = ?", l.ID).
		Select("device_id", "latitude", "longitude", "accuracy", "altitude", "altitude_accuracy",
			"battery", "speed", "heading", "updated_at").
		Updates(l)
	return updated(db, &models.Location{}, l.ID, res)
}

func (s *Store) DeleteLocation(ctx context.Context, id uint) error {
	return affected(s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Location{}))
}

// FindLocations joins devices so only the owner's samples are ever read.
// With LatestOnly, samples that have a newer sibling inside the same window
// are excluded in SQL.
func (s *Store) FindLocations(ctx context.Context, f repository.LocationFilter) ([]models.Location, error) {
	q := s.db.WithContext(ctx).Model(&models.Location{}).
		Select("locations.*").
		Joins("JOIN devices ON devices.id = locations.device_id").
		Where("devices.user_id = ?", f.OwnerID)

	if f.DeviceID != nil {
		q = q.Where("locations.device_id = ?", *f.DeviceID)
	}
	if f.From != nil {
		q = q.Where("locations.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("locations.created_at <= ?", f.To.UTC())
	}
	if f.LatestOnly {
		newer := s.db.Table("locations AS newer").Select("1").
			Where("newer.device_id = locations.device_id").
			Where("(newer.created_at > locations.created_at OR (newer.created_at = locations.created_at AND newer.id > locations.id))")
		if f.To != nil {
			newer = newer.Where("newer.created_at <= ?", f.To.UTC())
		}
		q = q.Where("NOT EXISTS (?)", newer)
	}

	locations := make([]models.Location, 0)
	if err := q.Order("locations.created_at asc, locations.id asc").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}
