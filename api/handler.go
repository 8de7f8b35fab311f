package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jsbridge/jsbridge/internal/sessions"
)

// DispatchEndPoint is the single POST path the injected client script
// talks to.
const (
	DispatchEndPoint    = "/_process_srv0"
	HealthCheckEndPoint = "/healthcheck"
)

type Services struct {
	StoreSession sessions.Service
}

func NewHandler(services Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RouteHeaders().
		Route("Origin", "*", cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "session-id"},
			AllowCredentials: false, // <----------<<< do not allow credentials
		})).
		Handler)

	r.Mount(HealthCheckEndPoint, HealthCheckHandler())
	r.Mount(DispatchEndPoint, NewDispatcherHandler(services.StoreSession))
	r.Mount("/", NewPageHandler(services.StoreSession))

	return r
}
