package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"onloc/internal/auth"
	"onloc/internal/services/location"
)

// ListLocations serves the grouped history query.
func ListLocations(engine *location.Engine, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		q, err := location.ParseQuery(location.Params{
			DeviceID:  qs.Get("device_id"),
			StartDate: qs.Get("start_date"),
			EndDate:   qs.Get("end_date"),
			Latest:    qs.Get("latest"),
		})
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		groups, err := engine.List(r.Context(), auth.UserFrom(r.Context()), q)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, groups)
	}
}

func AvailableDates(engine *location.Engine, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var deviceID *uint
		if v := strings.TrimSpace(r.URL.Query().Get("device_id")); v != "" {
			id, err := location.ParseDeviceID(v)
			if err != nil {
				writeError(w, r, lg, err)
				return
			}
			deviceID = &id
		}
		dates, err := engine.AvailableDates(r.Context(), auth.UserFrom(r.Context()), deviceID)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, dates)
	}
}

func CreateLocation(locations *location.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req location.Sample
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		l, err := locations.Append(r.Context(), auth.UserFrom(r.Context()), req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusCreated, l)
	}
}

func GetLocation(locations *location.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "location")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		l, err := locations.Get(r.Context(), auth.UserFrom(r.Context()), id)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, l)
	}
}

func UpdateLocation(locations *location.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "location")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		var req location.Patch
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, lg, err)
			return
		}
		l, err := locations.Update(r.Context(), auth.UserFrom(r.Context()), id, req)
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, l)
	}
}

func DeleteLocation(locations *location.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id", "location")
		if err != nil {
			writeError(w, r, lg, err)
			return
		}
		if err := locations.Delete(r.Context(), auth.UserFrom(r.Context()), id); err != nil {
			writeError(w, r, lg, err)
			return
		}
		respondMessage(w, "location deleted")
	}
}
