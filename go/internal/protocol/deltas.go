package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delta is the envelope for every intent and delta carried on a room channel.
// Client intents arrive with Type and Data set; the engine fills in the rest
// before rebroadcasting.
type Delta struct {
	ID        string          `json:"id"`                // Delta UUID
	RoomKey   string          `json:"room_key"`          // Owning room
	Type      DeltaType       `json:"type"`              // Intent/delta kind
	Origin    string          `json:"origin,omitempty"`  // Originating participant id
	Timestamp time.Time       `json:"timestamp"`         // Engine-side creation time
	Data      json.RawMessage `json:"data,omitempty"`    // Kind-specific payload
}

// DeltaType identifies the kind of intent or delta.
type DeltaType string

const (
	// Client -> engine and engine -> others.
	DeltaTypeCursorMove    DeltaType = "cursor-move"
	DeltaTypeDrawingFlag   DeltaType = "drawing-flag"
	DeltaTypeStrokeStart   DeltaType = "stroke-start"
	DeltaTypeStrokeAppend  DeltaType = "stroke-append"
	DeltaTypeStrokeCommit  DeltaType = "stroke-commit"
	DeltaTypeUndo          DeltaType = "undo"
	DeltaTypeClear         DeltaType = "clear"
	DeltaTypeEmojiReaction DeltaType = "emoji-reaction"

	// Client -> engine only.
	DeltaTypeJoin      DeltaType = "join"
	DeltaTypeLeave     DeltaType = "leave"
	DeltaTypeHeartbeat DeltaType = "heartbeat"

	// Engine -> clients only.
	DeltaTypeParticipantJoined DeltaType = "participant-joined"
	DeltaTypeParticipantLeft   DeltaType = "participant-left"
	DeltaTypeStrokeCancel      DeltaType = "stroke-cancel"
	DeltaTypeRoomState         DeltaType = "room-state"
	DeltaTypeError             DeltaType = "error"
)

// JoinPayload is the identity a client submits when joining a room.
type JoinPayload struct {
	Nickname string `json:"nickname"`
	Emoji    string `json:"emoji"`
}

// PresencePayload describes a participant entering or leaving the room.
type PresencePayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// CursorPayload carries a cursor position with overwrite-latest semantics.
type CursorPayload struct {
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
}

// DrawingFlagPayload toggles a participant's drawing-activity flag.
type DrawingFlagPayload struct {
	Drawing     bool             `json:"drawing"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
}

// StrokeStartPayload opens a new in-progress stroke.
type StrokeStartPayload struct {
	StrokeID    string           `json:"stroke_id,omitempty"`
	Color       string           `json:"color"`
	Width       float64          `json:"width"`
	Effect      Effect           `json:"effect"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
}

// StrokeAppendPayload appends one point to an in-progress stroke.
type StrokeAppendPayload struct {
	StrokeID string `json:"stroke_id"`
	Point    Point  `json:"point"`
}

// StrokeCommitPayload finalizes an in-progress stroke.
type StrokeCommitPayload struct {
	StrokeID string `json:"stroke_id"`
}

// StrokeCancelPayload announces that an in-progress stroke was discarded
// without committing (for example a single-point stroke).
type StrokeCancelPayload struct {
	StrokeID string `json:"stroke_id"`
}

// UndoPayload announces removal of the most recently committed stroke.
type UndoPayload struct {
	StrokeID string `json:"stroke_id,omitempty"`
}

// EmojiReactionPayload is an ephemeral reaction; it is never stored.
type EmojiReactionPayload struct {
	Emoji       string           `json:"emoji"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Participant *ParticipantInfo `json:"participant,omitempty"`
}

// RoomStatePayload is the full snapshot delivered once to a joining client.
type RoomStatePayload struct {
	Self         ParticipantInfo    `json:"self"`
	Participants []ParticipantState `json:"participants"`
	Strokes      []Stroke           `json:"strokes"`
}

// ErrorPayload reports a local, non-fatal rejection to the offending client.
type ErrorPayload struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Intent  DeltaType `json:"intent,omitempty"`
}

// NewDelta builds an engine-originated delta with a fresh id and the given
// payload marshaled into the envelope.
func NewDelta(roomKey string, deltaType DeltaType, origin string, payload any) (*Delta, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", deltaType, err)
		}
		data = b
	}

	return &Delta{
		ID:        uuid.New().String(),
		RoomKey:   roomKey,
		Type:      deltaType,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ParseDeltaPayload parses a delta's raw data into the payload struct for its
// kind. Kinds without a payload return nil.
func ParseDeltaPayload(delta *Delta) (any, error) {
	switch delta.Type {
	case DeltaTypeJoin:
		var payload JoinPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeParticipantJoined, DeltaTypeParticipantLeft:
		var payload PresencePayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeCursorMove:
		var payload CursorPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeDrawingFlag:
		var payload DrawingFlagPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeStrokeStart:
		var payload StrokeStartPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeStrokeAppend:
		var payload StrokeAppendPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeStrokeCommit:
		var payload StrokeCommitPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeStrokeCancel:
		var payload StrokeCancelPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeUndo:
		if len(delta.Data) == 0 {
			return UndoPayload{}, nil
		}
		var payload UndoPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeEmojiReaction:
		var payload EmojiReactionPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeRoomState:
		var payload RoomStatePayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(delta.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case DeltaTypeLeave, DeltaTypeClear, DeltaTypeHeartbeat:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown delta type: %s", delta.Type)
	}
}
