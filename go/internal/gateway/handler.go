package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/room"
	"github.com/mcdev12/scribble/go/internal/roomkey"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections.
type WebSocketHandler struct {
	registry *room.Registry
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(registry *room.Registry, config ConnectionConfig) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleRoomConnection upgrades a client connection for a specific room.
// Malformed room keys are refused here, before any engine state is touched.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	key := roomkey.Normalize(r.URL.Query().Get("room"))
	if key == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}
	if !roomkey.Validate(key) {
		http.Error(w, "invalid room key", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("room_key", key).Msg("failed to upgrade WebSocket connection")
		return
	}

	session := newSession(uuid.New().String(), key, conn, h.registry, h.config)

	go session.writePump()
	go session.readPump()

	log.Info().
		Str("participant_id", session.ID).
		Str("room_key", key).
		Msg("WebSocket connection established")
}

// HandleNewRoomKey hands out a fresh shareable room key.
func (h *WebSocketHandler) HandleNewRoomKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"room_key": roomkey.Generate()})
}

// HandleStats returns statistics about active rooms and participants.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	total := 0
	for _, n := range stats {
		total += n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"active_rooms":       len(stats),
		"total_participants": total,
		"room_participants":  stats,
	})
}

// RegisterRoutes registers WebSocket and helper routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/api/room-key", h.HandleNewRoomKey)
	mux.HandleFunc("/api/stats", h.HandleStats)
}
