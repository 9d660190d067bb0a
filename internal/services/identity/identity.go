// Package identity owns user records: registration, credential checks and
// profile updates.
package identity

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/auth"
	"onloc/internal/models"
	"onloc/internal/repository"
	"onloc/internal/validation"
)

// RegistrationGate reports whether self-registration is open once an
// admin exists.
type RegistrationGate interface {
	RegistrationEnabled(ctx context.Context) (bool, error)
}

type Service struct {
	users repository.UserRepository
	gate  RegistrationGate
	lg    *zap.SugaredLogger
}

func NewService(users repository.UserRepository, gate RegistrationGate, lg *zap.SugaredLogger) *Service {
	return &Service{users: users, gate: gate, lg: lg}
}

type RegisterInput struct {
	Username             string `json:"username" validate:"required,max=16"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type ProfileInput struct {
	Username             *string `json:"username" validate:"omitnil,min=1,max=16"`
	Password             *string `json:"password" validate:"omitnil,min=8"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

// IsSetup reports whether an admin exists. It is evaluated on every call.
func (s *Service) IsSetup(ctx context.Context) (bool, error) {
	ok, err := s.users.AdminExists(ctx)
	if err != nil {
		return false, apperr.Internal(err)
	}
	return ok, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

func (s *Service) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := s.users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// Create stores a user with an already hashed password.
func (s *Service) Create(ctx context.Context, username, passwordHash string, admin bool) (*models.User, error) {
	u := &models.User{Username: username, PasswordHash: passwordHash}
	u.SetAdmin(admin)
	err := s.users.CreateUser(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) && admin {
		// Either the username is taken or a concurrent registration won the
		// admin slot; only the latter is retried.
		if _, lookupErr := s.users.UserByUsername(ctx, username); lookupErr == nil {
			return nil, usernameTaken()
		} else if !errors.Is(lookupErr, repository.ErrNotFound) {
			return nil, apperr.Internal(lookupErr)
		}
		s.lg.Infow("admin slot already claimed, registering as regular user", "username", username)
		u = &models.User{Username: username, PasswordHash: passwordHash}
		err = s.users.CreateUser(ctx, u)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, usernameTaken()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// Register creates a user if registration is open. The first user to be
// created while no admin exists becomes the admin.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	setup, err := s.IsSetup(ctx)
	if err != nil {
		return nil, err
	}
	if setup {
		open, err := s.gate.RegistrationEnabled(ctx)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if !open {
			return nil, apperr.Forbidden("registration is disabled")
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u, err := s.Create(ctx, in.Username, hash, !setup)
	if err != nil {
		return nil, err
	}
	s.lg.Infow("user registered", "user_id", u.ID, "admin", u.IsAdmin)
	return u, nil
}

// VerifyCredentials never reveals whether the username or the password was wrong.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	invalid := apperr.Unauthorized("invalid credentials")
	u, err := s.users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.lg.Warnw("stored password hash unusable", "user_id", u.ID, "error", err)
		}
		return nil, invalid
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, requester *models.User, in ProfileInput) (*models.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Password != nil && in.PasswordConfirmation != nil && *in.PasswordConfirmation != *in.Password {
		return nil, apperr.Field("password_confirmation", "confirmation does not match")
	}

	u, err := s.Get(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	if err := auth.EnsureOwner(requester, u.ID); err != nil {
		return nil, err
	}
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		u.PasswordHash = hash
	}

	err = s.users.UpdateUser(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, usernameTaken()
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

func usernameTaken() *apperr.Error {
	return apperr.Conflict("username has already been taken").WithField("username", "has already been taken")
}
