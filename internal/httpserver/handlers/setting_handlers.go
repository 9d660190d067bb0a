package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"onloc/internal/services/setting"
)

// Settings routes are mounted behind auth.RequireAdmin.

func ListSettings(settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := settings.List(r.Context())
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func CreateSetting(settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setting.Input
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		st, err := settings.Create(r.Context(), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusCreated, st)
	}
}

func GetSetting(settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "setting")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		st, err := settings.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

func UpdateSetting(settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "setting")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		var req setting.UpdateInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		st, err := settings.Update(r.Context(), id, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

func DeleteSetting(settings *setting.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "setting")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		if err := settings.Delete(r.Context(), id); err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondMessage(w, "setting deleted")
	}
}
