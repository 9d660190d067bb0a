package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/auth"
	"onloc/internal/models"
	"onloc/internal/services/identity"
	"onloc/internal/services/setting"
	"onloc/internal/services/token"
	"onloc/internal/validation"
)

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// tokenLabel names a new token after the client's choice or its User-Agent.
func tokenLabel(r *http.Request, requested string) string {
	if requested != "" {
		return requested
	}
	return r.UserAgent()
}

func Status(users *identity.Service, settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setup, err := users.IsSetup(r.Context())
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		open, err := settings.RegistrationEnabled(r.Context())
		if err != nil {
			writeError(w, r, lg, apperr.Internal(err))
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"is_setup": setup, "registration": open})
	}
}

func Register(users *identity.Service, tokens *token.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			identity.RegisterInput
			TokenName string `json:"token_name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		u, err := users.Register(r.Context(), req.RegisterInput)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		_, raw, err := tokens.Issue(r.Context(), u, tokenLabel(r, req.TokenName))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusCreated, authResponse{User: u, Token: raw})
	}
}

type loginReq struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	TokenName string `json:"token_name"`
}

func Login(users *identity.Service, tokens *token.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		if err := validation.Struct(req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		u, err := users.VerifyCredentials(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		_, raw, err := tokens.Issue(r.Context(), u, tokenLabel(r, req.TokenName))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		lg.Infow("login", "user_id", u.ID, "request_id", requestID(r))
		respondJSON(w, http.StatusOK, authResponse{User: u, Token: raw})
	}
}

func Me(lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, auth.UserFrom(r.Context()))
	}
}

func UpdateMe(users *identity.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.ProfileInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		u, err := users.UpdateProfile(r.Context(), auth.UserFrom(r.Context()), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, u)
	}
}

func Logout(tokens *token.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := tokens.RevokeCurrent(ctx, auth.UserFrom(ctx), auth.TokenFrom(ctx)); err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondMessage(w, "logged out")
	}
}

func ListTokens(tokens *token.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tokens.List(r.Context(), auth.UserFrom(r.Context()))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func RevokeToken(tokens *token.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "token")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		if err := tokens.Revoke(r.Context(), auth.UserFrom(r.Context()), id); err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondMessage(w, "token revoked")
	}
}
