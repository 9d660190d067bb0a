// Package gormrepo implements repository.Store on top of GORM for
// PostgreSQL and MySQL.
package gormrepo

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"onloc/internal/models"
	"onloc/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.Store = (*Store)(nil)

// New wraps an already opened connection. The schema must be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, mainly for shutdown.
func (s *Store) DB() *gorm.DB { return s.db }

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

// ConnectWithRetry opens the database with retry and migrates the schema.
func ConnectWithRetry(driver, dsn string, attempts int, delay time.Duration, lg *zap.SugaredLogger) (*Store, error) {
	dial, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := gorm.Open(dial, &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			if err := Migrate(db); err != nil {
				return nil, err
			}
			return New(db), nil
		}

		lastErr = err
		lg.Warnw("db connect failed", "attempt", i, "error", err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("db connect failed after %d attempts: %w", attempts, lastErr)
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Token{}, &models.Device{}, &models.Location{}, &models.Setting{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		// the referenced parent row is gone
		return repository.ErrNotFound
	}
	return err
}

// updated reports ErrNotFound when an update matched no row. MySQL counts
// only changed rows, so a zero count is confirmed with a lookup.
func updated(tx *gorm.DB, model interface{}, id uint, res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// affected turns a write that matched no rows into ErrNotFound.
func affected(res *gorm.DB) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
