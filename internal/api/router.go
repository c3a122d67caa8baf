package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/authn"
	"github.com/pushkeep-io/pushkeep/internal/controller"
)

// RouterConfig holds the dependencies needed to build the HTTP router,
// grouped into one struct per the teacher's RouterConfig pattern to
// keep NewRouter's signature stable as dependencies grow.
type RouterConfig struct {
	Controller   *controller.Controller
	Tables       TableCreator
	Destinations DestinationCreator
	Stream       *Hub
	Auth         *authn.Manager // nil disables authentication (local dev only)
	Logger       *zap.Logger
}

// NewRouter builds the fully configured Chi router for pushkeepd's
// control-plane surface. It carries no lifecycle logic — every handler
// exists only to marshal HTTP onto a Controller/store call (spec §9).
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	pushHandler := NewPushHandler(cfg.Controller, cfg.Logger)
	tableHandler := NewTableHandler(cfg.Tables, cfg.Logger)
	destHandler := NewDestinationHandler(cfg.Destinations, cfg.Logger)
	streamHandler := NewStreamHandler(cfg.Stream, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Middleware)
		}

		r.Post("/tables", tableHandler.Create)
		r.Post("/destinations", destHandler.Create)

		r.Route("/destinations/{destId}", func(r chi.Router) {
			r.Get("/pushes", pushHandler.Status)
			r.Post("/pushes", pushHandler.Start)
			r.Post("/pushes/batch", pushHandler.StartMany)
			r.Delete("/pushes/{tableId}", pushHandler.Cancel)
			r.Post("/pushes/cancel", pushHandler.CancelMany)
			r.Get("/stream", streamHandler.ServeWS)
		})

		r.Post("/pushes/cancel-all", pushHandler.CancelAll)
	})

	return r
}
