package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/protocol"
	"github.com/mcdev12/scribble/go/internal/room"
)

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8192,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// SessionState tracks where a connection is in its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateJoined
	StateLeft
)

// attachment hands the join snapshot and the room delta stream to the write
// pump in one message, so the snapshot is always written before any delta.
type attachment struct {
	snapshot []byte
	deltas   <-chan *protocol.Delta
}

// Session is one connected client. It translates inbound intents into room
// operations and forwards outbound deltas to its client. A session that never
// joins holds no room resources.
type Session struct {
	ID      string // connection-scoped participant id
	RoomKey string

	conn     *websocket.Conn
	registry *room.Registry
	config   ConnectionConfig

	send   chan []byte
	attach chan attachment

	mu    sync.Mutex
	state SessionState
	room  *room.Room

	ConnectedAt time.Time
}

// newSession wraps an upgraded connection. The caller starts the pumps.
func newSession(id, roomKey string, conn *websocket.Conn, registry *room.Registry, config ConnectionConfig) *Session {
	return &Session{
		ID:          id,
		RoomKey:     roomKey,
		conn:        conn,
		registry:    registry,
		config:      config,
		send:        make(chan []byte, 64),
		attach:      make(chan attachment, 1),
		state:       StateConnecting,
		ConnectedAt: time.Now(),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// readPump reads client intents until the connection closes, then releases
// any room resources the session holds.
func (s *Session) readPump() {
	defer func() {
		s.leave()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.heartbeat()
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().
					Err(err).
					Str("participant_id", s.ID).
					Str("room_key", s.RoomKey).
					Msg("unexpected WebSocket close")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var intent protocol.Delta
		if err := json.Unmarshal(message, &intent); err != nil {
			s.sendError("malformed_intent", "intent is not valid JSON", "")
			continue
		}

		if done := s.handleIntent(&intent); done {
			return
		}
	}
}

// handleIntent dispatches one inbound intent. It reports true when the
// session should terminate (explicit leave).
func (s *Session) handleIntent(intent *protocol.Delta) bool {
	s.mu.Lock()
	state := s.state
	rm := s.room
	s.mu.Unlock()

	switch state {
	case StateConnecting:
		if intent.Type != protocol.DeltaTypeJoin {
			s.sendError("not_joined", "join is the only intent accepted before joining", intent.Type)
			return false
		}
		s.join(intent)
		return false

	case StateJoined:
		switch intent.Type {
		case protocol.DeltaTypeJoin:
			s.sendError("already_joined", "session already joined a room", intent.Type)
			return false

		case protocol.DeltaTypeLeave:
			return true

		case protocol.DeltaTypeHeartbeat:
			s.reject(rm.Heartbeat(s.ID), intent.Type)
			return false

		case protocol.DeltaTypeCursorMove:
			var payload protocol.CursorPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid cursor payload", intent.Type)
				return false
			}
			s.reject(rm.UpdateCursor(s.ID, payload.X, payload.Y), intent.Type)
			return false

		case protocol.DeltaTypeDrawingFlag:
			var payload protocol.DrawingFlagPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid drawing-flag payload", intent.Type)
				return false
			}
			s.reject(rm.SetDrawing(s.ID, payload.Drawing), intent.Type)
			return false

		case protocol.DeltaTypeStrokeStart:
			var payload protocol.StrokeStartPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid stroke-start payload", intent.Type)
				return false
			}
			meta := protocol.StrokeMeta{Color: payload.Color, Width: payload.Width, Effect: payload.Effect}
			if _, err := rm.StartStroke(s.ID, meta); err != nil {
				s.reject(err, intent.Type)
			}
			return false

		case protocol.DeltaTypeStrokeAppend:
			var payload protocol.StrokeAppendPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid stroke-append payload", intent.Type)
				return false
			}
			s.reject(rm.AppendPoint(s.ID, payload.StrokeID, payload.Point), intent.Type)
			return false

		case protocol.DeltaTypeStrokeCommit:
			var payload protocol.StrokeCommitPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid stroke-commit payload", intent.Type)
				return false
			}
			s.reject(rm.CommitStroke(s.ID, payload.StrokeID), intent.Type)
			return false

		case protocol.DeltaTypeUndo:
			s.reject(rm.Undo(s.ID), intent.Type)
			return false

		case protocol.DeltaTypeClear:
			s.reject(rm.Clear(s.ID), intent.Type)
			return false

		case protocol.DeltaTypeEmojiReaction:
			var payload protocol.EmojiReactionPayload
			if err := json.Unmarshal(intent.Data, &payload); err != nil {
				s.sendError("malformed_intent", "invalid emoji-reaction payload", intent.Type)
				return false
			}
			s.reject(rm.EmojiReaction(s.ID, payload.Emoji, payload.X, payload.Y), intent.Type)
			return false

		default:
			s.sendError("unknown_intent", "unknown intent kind", intent.Type)
			return false
		}

	default: // StateLeft
		return true
	}
}

// join transitions CONNECTING -> JOINED: registers with the room, receives
// the atomic snapshot and attaches the room's delta stream to the write pump.
func (s *Session) join(intent *protocol.Delta) {
	var payload protocol.JoinPayload
	if err := json.Unmarshal(intent.Data, &payload); err != nil {
		s.sendError("malformed_intent", "invalid join payload", intent.Type)
		return
	}

	rm := s.registry.GetOrCreateRoom(s.RoomKey)
	snapshot, deltas, err := rm.Join(s.ID, payload.Nickname, payload.Emoji)
	if err != nil {
		s.reject(err, intent.Type)
		return
	}

	stateDelta, err := protocol.NewDelta(s.RoomKey, protocol.DeltaTypeRoomState, "", snapshot)
	if err != nil {
		log.Error().Err(err).Str("room_key", s.RoomKey).Msg("failed to build room-state delta")
		rm.Leave(s.ID)
		return
	}
	data, err := json.Marshal(stateDelta)
	if err != nil {
		log.Error().Err(err).Str("room_key", s.RoomKey).Msg("failed to marshal room-state delta")
		rm.Leave(s.ID)
		return
	}

	s.mu.Lock()
	s.state = StateJoined
	s.room = rm
	s.mu.Unlock()

	s.attach <- attachment{snapshot: data, deltas: deltas}

	log.Info().
		Str("participant_id", s.ID).
		Str("room_key", s.RoomKey).
		Msg("session joined")
}

// leave transitions to LEFT and releases room resources. Idempotent.
func (s *Session) leave() {
	s.mu.Lock()
	wasJoined := s.state == StateJoined
	s.state = StateLeft
	s.mu.Unlock()

	if wasJoined {
		s.registry.ReleaseParticipant(s.RoomKey, s.ID)
	}
}

// heartbeat refreshes room liveness off a transport pong.
func (s *Session) heartbeat() {
	s.mu.Lock()
	rm := s.room
	joined := s.state == StateJoined
	s.mu.Unlock()

	if joined && rm != nil {
		rm.Heartbeat(s.ID)
	}
}

// reject surfaces a room-level rejection to this client only. A nil error is
// a successful operation and produces nothing.
func (s *Session) reject(err error, intent protocol.DeltaType) {
	if err == nil {
		return
	}
	log.Debug().
		Err(err).
		Str("participant_id", s.ID).
		Str("room_key", s.RoomKey).
		Str("intent", string(intent)).
		Msg("intent rejected")
	s.sendError(room.ErrorCode(err), err.Error(), intent)
}

// sendError enqueues an error delta for this session's client. Rejections
// never reach other participants.
func (s *Session) sendError(code, message string, intent protocol.DeltaType) {
	delta, err := protocol.NewDelta(s.RoomKey, protocol.DeltaTypeError, s.ID, protocol.ErrorPayload{
		Code:    code,
		Message: message,
		Intent:  intent,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(delta)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		log.Warn().Str("participant_id", s.ID).Msg("session send buffer full, dropping error reply")
	}
}

// writePump writes outbound frames: the join snapshot, room deltas and error
// replies, plus transport pings. A closed delta channel means the room
// dropped this subscriber, so the connection is closed and the client
// re-synchronizes by reconnecting.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	var deltas <-chan *protocol.Delta

	for {
		select {
		case att := <-s.attach:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, att.snapshot); err != nil {
				return
			}
			deltas = att.deltas

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case delta, ok := <-deltas:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(delta)
			if err != nil {
				log.Error().Err(err).Str("participant_id", s.ID).Msg("failed to marshal delta")
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
