// Package location stores geolocation samples and answers history queries
// over them.
package location

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/auth"
	"onloc/internal/models"
	"onloc/internal/repository"
	"onloc/internal/validation"
)

// Publisher receives every committed sample, addressed to the owning user.
type Publisher interface {
	Publish(userID uint, event any)
}

// Event is the payload pushed to live subscribers.
type Event struct {
	Type string           `json:"type"`
	Data *models.Location `json:"data"`
}

const EventLocation = "location"

type Service struct {
	devices   repository.DeviceRepository
	locations repository.LocationRepository
	publisher Publisher
	now       func() time.Time
	lg        *zap.SugaredLogger
}

// NewService wires the store. publisher may be nil.
func NewService(devices repository.DeviceRepository, locations repository.LocationRepository, publisher Publisher, lg *zap.SugaredLogger) *Service {
	return &Service{devices: devices, locations: locations, publisher: publisher, now: time.Now, lg: lg}
}

// Sample is a location report as submitted by a client. Any client-supplied
// timestamp is ignored.
type Sample struct {
	DeviceID         uint     `json:"device_id" validate:"required,gt=0"`
	Latitude         *float64 `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude        *float64 `json:"longitude" validate:"required,min=-180,max=180"`
	Accuracy         *float64 `json:"accuracy"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy"`
	Battery          *float64 `json:"battery" validate:"omitnil,min=0,max=100"`
	Speed            *float64 `json:"speed"`
	Heading          *float64 `json:"heading"`
}

// Patch changes the supplied fields of an existing sample.
type Patch struct {
	DeviceID         *uint    `json:"device_id" validate:"omitnil,gt=0"`
	Latitude         *float64 `json:"latitude" validate:"omitnil,min=-90,max=90"`
	Longitude        *float64 `json:"longitude" validate:"omitnil,min=-180,max=180"`
	Accuracy         *float64 `json:"accuracy"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy"`
	Battery          *float64 `json:"battery" validate:"omitnil,min=0,max=100"`
	Speed            *float64 `json:"speed"`
	Heading          *float64 `json:"heading"`
}

// Append stores a sample for a device the requester owns and publishes it.
func (s *Service) Append(ctx context.Context, requester *models.User, in Sample) (*models.Location, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.ownedDevice(ctx, requester, in.DeviceID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.Location{
		DeviceID:         in.DeviceID,
		Latitude:         *in.Latitude,
		Longitude:        *in.Longitude,
		Accuracy:         in.Accuracy,
		Altitude:         in.Altitude,
		AltitudeAccuracy: in.AltitudeAccuracy,
		Battery:          in.Battery,
		Speed:            in.Speed,
		Heading:          in.Heading,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.locations.CreateLocation(ctx, l)
	if errors.Is(err, repository.ErrNotFound) {
		// device deleted concurrently
		return nil, apperr.NotFound("device not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if s.publisher != nil {
		s.publisher.Publish(requester.ID, Event{Type: EventLocation, Data: l})
	}
	return l, nil
}

func (s *Service) Get(ctx context.Context, requester *models.User, id uint) (*models.Location, error) {
	l, err := s.locations.LocationByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("location not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if _, err := s.ownedDevice(ctx, requester, l.DeviceID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("location not found")
		}
		return nil, err
	}
	return l, nil
}

func (s *Service) Update(ctx context.Context, requester *models.User, id uint, in Patch) (*models.Location, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	l, err := s.Get(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if in.DeviceID != nil && *in.DeviceID != l.DeviceID {
		if _, err := s.ownedDevice(ctx, requester, *in.DeviceID); err != nil {
			return nil, err
		}
		l.DeviceID = *in.DeviceID
	}
	if in.Latitude != nil {
		l.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		l.Longitude = *in.Longitude
	}
	assign(&l.Accuracy, in.Accuracy)
	assign(&l.Altitude, in.Altitude)
	assign(&l.AltitudeAccuracy, in.AltitudeAccuracy)
	assign(&l.Battery, in.Battery)
	assign(&l.Speed, in.Speed)
	assign(&l.Heading, in.Heading)
	l.UpdatedAt = s.now().UTC()

	err = s.locations.UpdateLocation(ctx, l)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("location not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return l, nil
}

func (s *Service) Delete(ctx context.Context, requester *models.User, id uint) error {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	err := s.locations.DeleteLocation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("location not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ownedDevice loads a device and checks it belongs to requester. Existence
// is checked first.
func (s *Service) ownedDevice(ctx context.Context, requester *models.User, id uint) (*models.Device, error) {
	d, err := s.devices.DeviceByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("device not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := auth.EnsureOwner(requester, d.UserID); err != nil {
		return nil, err
	}
	return d, nil
}

func assign(dst **float64, v *float64) {
	if v != nil {
		x := *v
		*dst = &x
	}
}
