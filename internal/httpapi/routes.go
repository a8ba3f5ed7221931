package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/hub"
	"github.com/DoyleJ11/match3-backend/internal/logging"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	Store          store.Store
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	v := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(d.Logger))

	// Public routes
	r.Post("/sessions", CreateSession(d.Hub, v, d.Logger))
	r.Get("/sessions/{id}", GetSession(d.Hub, d.Logger))
	r.Delete("/sessions/{id}", DeleteSession(d.Hub, d.Logger))
	r.Get("/ranking", Ranking(d.Store, d.Logger))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(ws.Deps{
		Hub:            d.Hub,
		Store:          d.Store,
		Logger:         d.Logger,
		Validate:       v,
		AllowedOrigins: d.AllowedOrigins,
	}))
	return r
}
