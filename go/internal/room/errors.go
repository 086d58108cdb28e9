package room

import "errors"

// Rejection classes for protocol violations. These are surfaced to the
// offending client only and never broadcast.
var (
	ErrRoomFull           = errors.New("room is at capacity")
	ErrAlreadyJoined      = errors.New("participant already joined")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrInvalidNickname    = errors.New("nickname must be non-empty and at most 20 characters")

	ErrStrokeOpen      = errors.New("participant already has an in-progress stroke")
	ErrUnknownStroke   = errors.New("unknown stroke")
	ErrNotOwner        = errors.New("stroke is owned by another participant")
	ErrStrokeCommitted = errors.New("stroke is already committed")
)

// ErrorCode maps a rejection to the short code carried in an error delta.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, ErrInvalidNickname):
		return "invalid_nickname"
	case errors.Is(err, ErrStrokeOpen):
		return "stroke_open"
	case errors.Is(err, ErrUnknownStroke):
		return "unknown_stroke"
	case errors.Is(err, ErrNotOwner):
		return "not_stroke_owner"
	case errors.Is(err, ErrStrokeCommitted):
		return "stroke_committed"
	default:
		return "rejected"
	}
}
