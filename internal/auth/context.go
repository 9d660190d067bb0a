package auth

import (
	"context"

	"onloc/internal/apperr"
	"onloc/internal/models"
)

type ctxKey string

const (
	userKey  ctxKey = "authUser"
	tokenKey ctxKey = "authToken"
)

// WithPrincipal stores the authenticated user and the token it presented.
func WithPrincipal(ctx context.Context, u *models.User, t *models.Token) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, tokenKey, t)
}

func UserFrom(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

func TokenFrom(ctx context.Context) *models.Token {
	if t, ok := ctx.Value(tokenKey).(*models.Token); ok {
		return t
	}
	return nil
}

// EnsureOwner must run after the resource has been loaded, so a missing
// resource is reported as not found before ownership is considered.
func EnsureOwner(requester *models.User, ownerID uint) error {
	if requester == nil || requester.ID != ownerID {
		return apperr.Forbidden("this action is unauthorized")
	}
	return nil
}
