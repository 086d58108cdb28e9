package room

import (
	"strings"
	"time"

	"github.com/mcdev12/scribble/go/internal/protocol"
)

// Participant is one connected session's presence record. Only the owning
// session mutates it; other sessions read it through snapshots.
type Participant struct {
	Info          protocol.ParticipantInfo
	Cursor        *protocol.Point
	Drawing       bool
	LastHeartbeat time.Time

	strokeSeq int
}

// State returns the participant's snapshot form for room-state payloads.
func (p *Participant) State() protocol.ParticipantState {
	state := protocol.ParticipantState{
		ParticipantInfo: p.Info,
		Drawing:         p.Drawing,
	}
	if p.Cursor != nil {
		c := *p.Cursor
		state.Cursor = &c
	}
	return state
}

// PresenceTable tracks the participants of one room. Like the document it is
// unguarded; the owning Room serializes access.
type PresenceTable struct {
	participants map[string]*Participant
}

// NewPresenceTable creates an empty presence table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{participants: make(map[string]*Participant)}
}

// Join registers a participant. The nickname is trimmed and length-capped;
// an avatar outside the fixed set falls back to the default glyph.
func (t *PresenceTable) Join(id, nickname, emoji string, now time.Time) (*Participant, error) {
	if _, exists := t.participants[id]; exists {
		return nil, ErrAlreadyJoined
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" || len([]rune(nickname)) > protocol.MaxNicknameLen {
		return nil, ErrInvalidNickname
	}
	if !protocol.ValidAvatar(emoji) {
		emoji = protocol.DefaultAvatar
	}

	p := &Participant{
		Info: protocol.ParticipantInfo{
			ID:       id,
			Nickname: nickname,
			Emoji:    emoji,
		},
		LastHeartbeat: now,
	}
	t.participants[id] = p
	return p, nil
}

// Get returns a participant by id.
func (t *PresenceTable) Get(id string) (*Participant, bool) {
	p, ok := t.participants[id]
	return p, ok
}

// UpdateCursor overwrites a participant's last-known cursor position.
func (t *PresenceTable) UpdateCursor(id string, x, y float64, now time.Time) error {
	p, ok := t.participants[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.Cursor = &protocol.Point{X: x, Y: y}
	p.LastHeartbeat = now
	return nil
}

// SetDrawing toggles a participant's drawing-activity flag.
func (t *PresenceTable) SetDrawing(id string, drawing bool, now time.Time) error {
	p, ok := t.participants[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.Drawing = drawing
	p.LastHeartbeat = now
	return nil
}

// Heartbeat refreshes a participant's liveness.
func (t *PresenceTable) Heartbeat(id string, now time.Time) error {
	p, ok := t.participants[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.LastHeartbeat = now
	return nil
}

// Leave removes a participant and returns its record, or nil if unknown.
func (t *PresenceTable) Leave(id string) *Participant {
	p, ok := t.participants[id]
	if !ok {
		return nil
	}
	delete(t.participants, id)
	return p
}

// ListActive returns participants whose last heartbeat falls within the
// staleness window, in no particular order.
func (t *PresenceTable) ListActive(now time.Time, window time.Duration) []*Participant {
	active := make([]*Participant, 0, len(t.participants))
	for _, p := range t.participants {
		if now.Sub(p.LastHeartbeat) <= window {
			active = append(active, p)
		}
	}
	return active
}

// EvictStale removes and returns every participant whose heartbeat is older
// than the staleness window. The caller emits the synthetic left deltas.
func (t *PresenceTable) EvictStale(now time.Time, window time.Duration) []*Participant {
	var evicted []*Participant
	for id, p := range t.participants {
		if now.Sub(p.LastHeartbeat) > window {
			delete(t.participants, id)
			evicted = append(evicted, p)
		}
	}
	return evicted
}

// Len returns the number of registered participants, stale or not.
func (t *PresenceTable) Len() int {
	return len(t.participants)
}

// NextStrokeSeq hands out the participant's next local stroke sequence
// number, monotonically per connection.
func (t *PresenceTable) NextStrokeSeq(id string) (int, error) {
	p, ok := t.participants[id]
	if !ok {
		return 0, ErrUnknownParticipant
	}
	p.strokeSeq++
	return p.strokeSeq, nil
}
