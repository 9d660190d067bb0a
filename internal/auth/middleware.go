package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/models"
)

// TokenValidator resolves a presented bearer string to its user.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*models.User, *models.Token, error)
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(v TokenValidator, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return authenticate(v, lg, false)
}

// AuthenticateUpgrade also accepts the token from the "token" query
// parameter, since browsers cannot set headers on websocket handshakes.
func AuthenticateUpgrade(v TokenValidator, lg *zap.SugaredLogger) func(http.Handler) http.Handler {
	return authenticate(v, lg, true)
}

func authenticate(v TokenValidator, lg *zap.SugaredLogger, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok && allowQuery {
				raw = r.URL.Query().Get("token")
				ok = raw != ""
			}
			if !ok {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			user, tok, err := v.Validate(r.Context(), raw)
			if err != nil {
				if apperr.Is(err, apperr.KindUnauthorized) {
					deny(w, http.StatusUnauthorized, "invalid token")
					return
				}
				lg.Errorw("token validation failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
				deny(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user, tok)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil || !u.IsAdmin {
			deny(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
