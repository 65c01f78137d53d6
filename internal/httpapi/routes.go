package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/pokersync/backend/internal/hub"
	"github.com/pokersync/backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, origins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler)

	// Public routes
	r.Post("/rooms", NewRoomCode(h, log))
	r.Get("/rooms/{id}", RoomState(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, origins, log))
	return r
}
