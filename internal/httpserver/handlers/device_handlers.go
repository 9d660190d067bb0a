package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"onloc/internal/auth"
	"onloc/internal/services/device"
)

func ListDevices(devices *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := devices.ListForOwner(r.Context(), auth.UserFrom(r.Context()))
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func CreateDevice(devices *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req device.Input
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		d, err := devices.Create(r.Context(), auth.UserFrom(r.Context()), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusCreated, d)
	}
}

func GetDevice(devices *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "device")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		d, err := devices.Get(r.Context(), auth.UserFrom(r.Context()), id)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, d)
	}
}

func UpdateDevice(devices *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "device")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		var req device.UpdateInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		d, err := devices.Update(r.Context(), auth.UserFrom(r.Context()), id, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, d)
	}
}

func DeleteDevice(devices *device.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "device")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		if err := devices.Delete(r.Context(), auth.UserFrom(r.Context()), id); err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondMessage(w, "device deleted")
	}
}
