// Package setting manages the admin-editable key/value settings.
package setting

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/models"
	"onloc/internal/repository"
	"onloc/internal/validation"
)

type Service struct {
	repo repository.SettingRepository
	lg   *zap.SugaredLogger
}

func NewService(repo repository.SettingRepository, lg *zap.SugaredLogger) *Service {
	return &Service{repo: repo, lg: lg}
}

type Input struct {
	Key   string `json:"key" validate:"required,max=255"`
	Value string `json:"value" validate:"max=255"`
}

type UpdateInput struct {
	Key   *string `json:"key" validate:"omitnil,min=1,max=255"`
	Value *string `json:"value" validate:"omitnil,max=255"`
}

func (s *Service) List(ctx context.Context) ([]models.Setting, error) {
	out, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Setting, error) {
	st, err := s.repo.SettingByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("setting not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return st, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Setting, error) {
	in.Key = strings.TrimSpace(in.Key)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	st := &models.Setting{Key: in.Key, Value: in.Value}
	if err := s.repo.CreateSetting(ctx, st); err != nil {
		return nil, translate(err)
	}
	s.lg.Infow("setting created", "key", st.Key)
	return st, nil
}

func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.Setting, error) {
	if in.Key != nil {
		k := strings.TrimSpace(*in.Key)
		in.Key = &k
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	st, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Key != nil {
		st.Key = *in.Key
	}
	if in.Value != nil {
		st.Value = *in.Value
	}
	if err := s.repo.UpdateSetting(ctx, st); err != nil {
		return nil, translate(err)
	}
	s.lg.Infow("setting updated", "key", st.Key)
	return st, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	err := s.repo.DeleteSetting(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("setting not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RegistrationEnabled reads the registration flag. A missing setting means
// registration is closed.
func (s *Service) RegistrationEnabled(ctx context.Context) (bool, error) {
	st, err := s.repo.SettingByKey(ctx, models.SettingRegistration)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return truthy(st.Value), nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("key has already been taken").WithField("key", "has already been taken")
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("setting not found")
	}
	return apperr.Internal(err)
}
