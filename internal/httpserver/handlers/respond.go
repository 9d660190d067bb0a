package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"onloc/internal/apperr"
)

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondMessage(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// statusOf maps an error kind to its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError reports err to the client. Internal failures are logged and
// never described.
func writeError(w http.ResponseWriter, r *http.Request, lg *zap.SugaredLogger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		lg.Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r),
			"error", err,
		)
		respondJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
		return
	}
	body := errorBody{Message: ae.Message}
	if ae.Kind == apperr.KindValidation || ae.Kind == apperr.KindConflict {
		body.Errors = ae.Fields
	}
	respondJSON(w, statusOf(ae.Kind), body)
}

// decodeJSON reads the request body into dst. An empty body decodes as {}.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Field(typeErr.Field, "has an invalid type")
	}
	return apperr.Validation("request body is not valid JSON", nil)
}

// idParam parses a positive numeric path parameter. Anything else cannot
// name a record and is reported as not found.
func idParam(r *http.Request, name, resource string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, strconv.IntSize)
	if err != nil || id == 0 {
		return 0, apperr.NotFound(resource + " not found")
	}
	return uint(id), nil
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
