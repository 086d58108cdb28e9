package room

import (
	"fmt"

	"github.com/mcdev12/scribble/go/internal/protocol"
)

// minStrokePoints is the fewest points a stroke needs to survive commit. A
// zero-length drag produces nothing visible, so single-point strokes are
// discarded instead of committed.
const minStrokePoints = 2

// Document holds a room's ordered committed strokes plus at most one
// in-progress stroke per participant. It is not safe for concurrent use; all
// access goes through the owning Room's serialization point.
type Document struct {
	committed   []protocol.Stroke
	inProgress  map[string]*protocol.Stroke // stroke id -> stroke
	openByOwner map[string]string           // owner participant id -> open stroke id
}

// NewDocument creates an empty shared document.
func NewDocument() *Document {
	return &Document{
		inProgress:  make(map[string]*protocol.Stroke),
		openByOwner: make(map[string]string),
	}
}

// StartStroke opens a new in-progress stroke for the owner. The stroke id is
// derived from the owner id and a per-owner sequence number so concurrent
// participants can never collide.
func (d *Document) StartStroke(owner protocol.ParticipantInfo, seq int, meta protocol.StrokeMeta) (*protocol.Stroke, error) {
	if _, open := d.openByOwner[owner.ID]; open {
		return nil, ErrStrokeOpen
	}

	effect := meta.Effect
	if !effect.Valid() {
		effect = protocol.EffectNone
	}

	stroke := &protocol.Stroke{
		ID:     fmt.Sprintf("%s-%d", owner.ID, seq),
		Points: make([]protocol.Point, 0, 16),
		Color:  meta.Color,
		Width:  meta.Width,
		Effect: effect,
		Owner:  owner,
	}

	d.inProgress[stroke.ID] = stroke
	d.openByOwner[owner.ID] = stroke.ID
	return stroke, nil
}

// AppendPoint adds one point to an in-progress stroke. Only the owning
// participant may append; appends to unknown or committed strokes are
// rejected without mutating the document.
func (d *Document) AppendPoint(strokeID, participantID string, point protocol.Point) error {
	stroke, ok := d.inProgress[strokeID]
	if !ok {
		for _, s := range d.committed {
			if s.ID == strokeID {
				return ErrStrokeCommitted
			}
		}
		return ErrUnknownStroke
	}
	if stroke.Owner.ID != participantID {
		return ErrNotOwner
	}

	stroke.Points = append(stroke.Points, point)
	return nil
}

// CommitStroke moves an in-progress stroke to the tail of the committed
// sequence. Strokes with fewer than two points are discarded, which is a
// valid no-op removal rather than an error; committed reports whether the
// stroke actually entered the committed sequence.
func (d *Document) CommitStroke(strokeID, participantID string) (committed bool, err error) {
	stroke, ok := d.inProgress[strokeID]
	if !ok {
		for _, s := range d.committed {
			if s.ID == strokeID {
				return false, ErrStrokeCommitted
			}
		}
		return false, ErrUnknownStroke
	}
	if stroke.Owner.ID != participantID {
		return false, ErrNotOwner
	}

	delete(d.inProgress, strokeID)
	delete(d.openByOwner, participantID)

	if len(stroke.Points) < minStrokePoints {
		return false, nil
	}

	d.committed = append(d.committed, *stroke)
	return true, nil
}

// DiscardInProgress drops a participant's open stroke, if any, and returns
// its id. Used when the owner leaves mid-stroke or the document is cleared.
func (d *Document) DiscardInProgress(participantID string) (strokeID string, discarded bool) {
	id, open := d.openByOwner[participantID]
	if !open {
		return "", false
	}
	delete(d.inProgress, id)
	delete(d.openByOwner, participantID)
	return id, true
}

// UndoLast removes the most recently committed stroke room-wide, regardless
// of which participant committed it. Returns nil when the committed sequence
// is empty.
func (d *Document) UndoLast() *protocol.Stroke {
	if len(d.committed) == 0 {
		return nil
	}
	last := d.committed[len(d.committed)-1]
	d.committed = d.committed[:len(d.committed)-1]
	return &last
}

// Clear empties the committed sequence and discards every in-progress stroke.
func (d *Document) Clear() {
	d.committed = nil
	d.inProgress = make(map[string]*protocol.Stroke)
	d.openByOwner = make(map[string]string)
}

// Snapshot returns a copy of the ordered committed strokes for delivery to a
// joining client. Point slices are copied so later appends cannot alias into
// a snapshot already handed out.
func (d *Document) Snapshot() []protocol.Stroke {
	strokes := make([]protocol.Stroke, len(d.committed))
	for i, s := range d.committed {
		points := make([]protocol.Point, len(s.Points))
		copy(points, s.Points)
		s.Points = points
		strokes[i] = s
	}
	return strokes
}

// CommittedLen returns the number of committed strokes.
func (d *Document) CommittedLen() int {
	return len(d.committed)
}

// OpenStrokeID returns the id of a participant's in-progress stroke, if any.
func (d *Document) OpenStrokeID(participantID string) (string, bool) {
	id, ok := d.openByOwner[participantID]
	return id, ok
}
