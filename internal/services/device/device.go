// Package device manages the devices a user reports locations from.
package device

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/auth"
	"onloc/internal/models"
	"onloc/internal/repository"
	"onloc/internal/services/location"
	"onloc/internal/validation"
)

type Service struct {
	repo   repository.DeviceRepository
	engine *location.Engine
	lg     *zap.SugaredLogger
}

func NewService(repo repository.DeviceRepository, engine *location.Engine, lg *zap.SugaredLogger) *Service {
	return &Service{repo: repo, engine: engine, lg: lg}
}

type Input struct {
	Name string  `json:"name" validate:"required,max=255"`
	Icon *string `json:"icon" validate:"omitnil,max=255"`
}

// UpdateInput changes the supplied fields. An empty icon clears it.
type UpdateInput struct {
	Name *string `json:"name" validate:"omitnil,min=1,max=255"`
	Icon *string `json:"icon" validate:"omitnil,max=255"`
}

// DeviceWithLatest decorates a device with its newest sample, if any.
type DeviceWithLatest struct {
	models.Device
	LatestLocation *models.Location `json:"latest_location"`
}

func (s *Service) Create(ctx context.Context, owner *models.User, in Input) (*models.Device, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d := &models.Device{UserID: owner.ID, Name: in.Name, Icon: normalizeIcon(in.Icon)}
	if err := s.repo.CreateDevice(ctx, d); err != nil {
		return nil, translate(err)
	}
	s.lg.Infow("device created", "user_id", owner.ID, "device_id", d.ID)
	return d, nil
}

// Get reports a missing device before checking ownership.
func (s *Service) Get(ctx context.Context, requester *models.User, id uint) (*models.Device, error) {
	d, err := s.repo.DeviceByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if err := auth.EnsureOwner(requester, d.UserID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListForOwner(ctx context.Context, owner *models.User) ([]DeviceWithLatest, error) {
	devices, err := s.repo.DevicesForUser(ctx, owner.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	latest, err := s.engine.Latest(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceWithLatest, 0, len(devices))
	for _, d := range devices {
		item := DeviceWithLatest{Device: d}
		if l, ok := latest[d.ID]; ok {
			item.LatestLocation = &l
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, requester *models.User, id uint, in UpdateInput) (*models.Device, error) {
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		in.Name = &n
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	d, err := s.Get(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.Icon != nil {
		d.Icon = normalizeIcon(in.Icon)
	}
	if err := s.repo.UpdateDevice(ctx, d); err != nil {
		return nil, translate(err)
	}
	return d, nil
}

// Delete removes the device and every location recorded for it.
func (s *Service) Delete(ctx context.Context, requester *models.User, id uint) error {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	if err := s.repo.DeleteDevice(ctx, id); err != nil {
		return translate(err)
	}
	s.lg.Infow("device deleted", "user_id", requester.ID, "device_id", id)
	return nil
}

func normalizeIcon(icon *string) *string {
	if icon == nil {
		return nil
	}
	v := strings.TrimSpace(*icon)
	if v == "" {
		return nil
	}
	return &v
}

func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("device not found")
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("device name has already been taken").WithField("name", "has already been taken")
	}
	return apperr.Internal(err)
}
