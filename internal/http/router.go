package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/http/handlers"
	"github.com/velopos/pos/internal/middleware"
)

// RouterDeps bundles everything the router mounts
type RouterDeps struct {
	Devices     *handlers.DeviceHandler
	Admin       *handlers.AdminHandler
	Health      *handlers.HealthHandler
	Realtime    http.Handler
	DeviceAuth  middleware.DeviceResolver
	JWT         *auth.JWTService
	PairLimiter middleware.Limiter
	PINLimiter  middleware.Limiter
	Logger      zerolog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", d.Health.ServeHTTP)

	r.Route("/devices", func(r chi.Router) {
		r.With(middleware.RateLimitMiddleware(d.PairLimiter, middleware.GetIPKey, d.Logger)).
			Post("/pair", d.Devices.HandlePair)
		r.Get("/check", d.Devices.HandleCheck)

		// Device routes (require a bound device token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.DeviceAuth(d.DeviceAuth, d.Logger))
			r.Post("/session", d.Devices.HandleSession)
			r.Get("/settings", d.Devices.HandleSettings)
			r.With(middleware.RateLimitMiddleware(d.PINLimiter, middleware.GetIPKey, d.Logger)).
				Post("/employees/login", d.Devices.HandleEmployeeLogin)
		})
	})

	// Admin routes (require a store manager session of the addressed store)
	r.Route("/admin/stores/{storeID}", func(r chi.Router) {
		r.Use(middleware.EmployeeAuth(d.JWT))
		r.Use(middleware.RequireStoreManager)
		r.Post("/pairing-codes", d.Admin.HandleCreatePairingCode)
		r.Get("/devices", d.Admin.HandleListDevices)
		r.Delete("/devices/{deviceID}", d.Admin.HandleRevokeDevice)
		r.Patch("/settings", d.Admin.HandleUpdateSettings)
	})

	if d.Realtime != nil {
		r.Handle("/realtime/*", d.Realtime)
	}

	return r
}
