package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/room"
)

// Service ties the room registry to the WebSocket surface.
type Service struct {
	registry  *room.Registry
	wsHandler *WebSocketHandler
}

// NewService creates the gateway service around an existing registry.
func NewService(registry *room.Registry, config ConnectionConfig) *Service {
	return &Service{
		registry:  registry,
		wsHandler: NewWebSocketHandler(registry, config),
	}
}

// RegisterRoutes registers the gateway HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Registry exposes the underlying room registry.
func (s *Service) Registry() *room.Registry {
	return s.registry
}
