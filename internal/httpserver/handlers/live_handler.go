package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"onloc/internal/auth"
	"onloc/internal/realtime"
)

// LiveFeed upgrades to a websocket that receives the caller's new locations.
func LiveFeed(hub *realtime.Hub, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := auth.UserFrom(r.Context())
		lg.Debugw("live feed connect", "user_id", u.ID, "request_id", requestID(r))
		hub.ServeWS(w, r, u)
	}
}
