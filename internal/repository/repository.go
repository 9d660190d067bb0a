// Package repository declares the storage contracts the services depend on.
// Backends live in gormrepo (relational) and memrepo (in-process).
package repository

import (
	"context"
	"errors"
	"time"

	"onloc/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	AdminExists(ctx context.Context) (bool, error)
}

type TokenRepository interface {
	CreateToken(ctx context.Context, t *models.Token) error
	TokenByHash(ctx context.Context, hash string) (*models.Token, error)
	TouchToken(ctx context.Context, id uint, at time.Time) error
	TokensForUser(ctx context.Context, userID uint) ([]models.Token, error)
	// DeleteToken removes token id only if it belongs to userID.
	DeleteToken(ctx context.Context, userID, id uint) error
}

type DeviceRepository interface {
	CreateDevice(ctx context.Context, d *models.Device) error
	DeviceByID(ctx context.Context, id uint) (*models.Device, error)
	DevicesForUser(ctx context.Context, userID uint) ([]models.Device, error)
	UpdateDevice(ctx context.Context, d *models.Device) error
	// DeleteDevice removes the device together with its locations.
	DeleteDevice(ctx context.Context, id uint) error
}

// LocationFilter selects locations whose device belongs to OwnerID.
// From and To are inclusive bounds on CreatedAt.
type LocationFilter struct {
	OwnerID  uint
	DeviceID *uint
	From     *time.Time
	To       *time.Time
	// LatestOnly permits the backend to return only the newest sample per
	// device. Callers must still reduce the result themselves.
	LatestOnly bool
}

type LocationRepository interface {
	CreateLocation(ctx context.Context, l *models.Location) error
	LocationByID(ctx context.Context, id uint) (*models.Location, error)
	UpdateLocation(ctx context.Context, l *models.Location) error
	DeleteLocation(ctx context.Context, id uint) error
	// FindLocations returns matches ordered by CreatedAt, then ID.
	FindLocations(ctx context.Context, f LocationFilter) ([]models.Location, error)
}

type SettingRepository interface {
	CreateSetting(ctx context.Context, s *models.Setting) error
	SettingByID(ctx context.Context, id uint) (*models.Setting, error)
	SettingByKey(ctx context.Context, key string) (*models.Setting, error)
	ListSettings(ctx context.Context) ([]models.Setting, error)
	UpdateSetting(ctx context.Context, s *models.Setting) error
	DeleteSetting(ctx context.Context, id uint) error
}

// Store bundles every repository a backend provides.
type Store interface {
	UserRepository
	TokenRepository
	DeviceRepository
	LocationRepository
	SettingRepository
}
