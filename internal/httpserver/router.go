package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"onloc/internal/auth"
	"onloc/internal/httpserver/handlers"
	"onloc/internal/realtime"
	"onloc/internal/services/device"
	"onloc/internal/services/identity"
	"onloc/internal/services/location"
	"onloc/internal/services/setting"
	"onloc/internal/services/token"
)

// Deps are the services the API is served from.
type Deps struct {
	Users     *identity.Service
	Tokens    *token.Service
	Devices   *device.Service
	Locations *location.Service
	Queries   *location.Engine
	Settings  *setting.Service
	Hub       *realtime.Hub
}

func NewRouter(d Deps, lg *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(lg))

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", handlers.Status(d.Users, d.Settings, lg))
		api.Post("/register", handlers.Register(d.Users, d.Tokens, lg))
		api.Post("/login", handlers.Login(d.Users, d.Tokens, lg))

		api.With(auth.AuthenticateUpgrade(d.Tokens, lg)).Get("/ws", handlers.LiveFeed(d.Hub, lg))

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Authenticate(d.Tokens, lg))

			protected.Get("/user", handlers.Me(lg))
			protected.Patch("/user", handlers.UpdateMe(d.Users, lg))
			protected.Post("/logout", handlers.Logout(d.Tokens, lg))
			protected.Get("/user/tokens", handlers.ListTokens(d.Tokens, lg))
			protected.Delete("/user/tokens/{id}", handlers.RevokeToken(d.Tokens, lg))

			protected.Get("/locations", handlers.ListLocations(d.Queries, lg))
			protected.Get("/locations/dates", handlers.AvailableDates(d.Queries, lg))
			protected.Post("/locations", handlers.CreateLocation(d.Locations, lg))
			protected.Get("/locations/{id}", handlers.GetLocation(d.Locations, lg))
			protected.Patch("/locations/{id}", handlers.UpdateLocation(d.Locations, lg))
			protected.Delete("/locations/{id}", handlers.DeleteLocation(d.Locations, lg))

			protected.Get("/devices", handlers.ListDevices(d.Devices, lg))
			protected.Post("/devices", handlers.CreateDevice(d.Devices, lg))
			protected.Get("/devices/{id}", handlers.GetDevice(d.Devices, lg))
			protected.Patch("/devices/{id}", handlers.UpdateDevice(d.Devices, lg))
			protected.Delete("/devices/{id}", handlers.DeleteDevice(d.Devices, lg))

			protected.Group(func(admin chi.Router) {
				admin.Use(auth.RequireAdmin)
				admin.Get("/settings", handlers.ListSettings(d.Settings, lg))
				admin.Post("/settings", handlers.CreateSetting(d.Settings, lg))
				admin.Get("/settings/{id}", handlers.GetSetting(d.Settings, lg))
				admin.Patch("/settings/{id}", handlers.UpdateSetting(d.Settings, lg))
				admin.Delete("/settings/{id}", handlers.DeleteSetting(d.Settings, lg))
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
