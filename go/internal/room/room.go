package room

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/protocol"
)

// Config holds the per-room tuning knobs.
type Config struct {
	StalenessWindow  time.Duration // Max silence before a participant is evicted
	SweepInterval    time.Duration // How often the staleness sweep runs
	GracePeriod      time.Duration // How long an empty room lingers before teardown
	MaxParticipants  int           // Join capacity per room
	SubscriberBuffer int           // Pending deltas per subscriber queue
}

// DefaultConfig returns the default room configuration.
func DefaultConfig() Config {
	return Config{
		StalenessWindow:  5 * time.Second,
		SweepInterval:    time.Second,
		GracePeriod:      30 * time.Second,
		MaxParticipants:  32,
		SubscriberBuffer: 256,
	}
}

// Room is one isolated drawing session. All presence and document mutations
// execute under its mutex, which is the room's single serialization point;
// snapshot reads take the same mutex so a joining client observes either the
// state before or after any concurrent commit, never a partial splice.
type Room struct {
	Key string

	mu       sync.Mutex
	doc      *Document
	presence *PresenceTable
	bcast    *Broadcaster

	clock clockwork.Clock
	cfg   Config

	// onEmpty is invoked outside the lock whenever the last participant
	// leaves. The registry uses it to start the grace-period teardown.
	onEmpty func(key string)

	cancel context.CancelFunc
}

func newRoom(key string, cfg Config, clock clockwork.Clock, onEmpty func(string)) *Room {
	return &Room{
		Key:      key,
		doc:      NewDocument(),
		presence: NewPresenceTable(),
		bcast:    NewBroadcaster(key, cfg.SubscriberBuffer),
		clock:    clock,
		cfg:      cfg,
		onEmpty:  onEmpty,
	}
}

// SetRelay installs an external delta relay on the room's broadcaster.
func (r *Room) SetRelay(relay RelayFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcast.SetRelay(relay)
}

// start launches the staleness sweep. The registry calls this once per room.
func (r *Room) start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.runSweep(ctx)
}

// stop halts the staleness sweep.
func (r *Room) stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// runSweep periodically evicts participants whose heartbeat exceeded the
// staleness window, emitting a synthetic left delta for each. This covers
// abrupt disconnects that skip an explicit leave.
func (r *Room) runSweep(ctx context.Context) {
	ticker := r.clock.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.evictStale()
		}
	}
}

func (r *Room) evictStale() {
	r.mu.Lock()
	evicted := r.presence.EvictStale(r.clock.Now(), r.cfg.StalenessWindow)
	for _, p := range evicted {
		if strokeID, ok := r.doc.DiscardInProgress(p.Info.ID); ok {
			r.publishLocked(protocol.DeltaTypeStrokeCancel, p.Info.ID, protocol.StrokeCancelPayload{StrokeID: strokeID})
		}
		r.bcast.Unsubscribe(p.Info.ID)
		r.publishLocked(protocol.DeltaTypeParticipantLeft, p.Info.ID, protocol.PresencePayload{Participant: p.Info})
		log.Info().
			Str("room_key", r.Key).
			Str("participant_id", p.Info.ID).
			Msg("evicted stale participant")
	}
	empty := r.presence.Len() == 0 && len(evicted) > 0
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r.Key)
	}
}

// Join registers a participant, subscribes it to the room's delta stream and
// returns the atomic snapshot of current state. The subscription is created
// under the same lock the snapshot is taken under, so every delta published
// after the snapshot reaches the new subscriber and none published before it
// does.
func (r *Room) Join(participantID, nickname, emoji string) (*protocol.RoomStatePayload, <-chan *protocol.Delta, error) {
	r.mu.Lock()

	if r.presence.Len() >= r.cfg.MaxParticipants {
		r.mu.Unlock()
		return nil, nil, ErrRoomFull
	}

	now := r.clock.Now()
	p, err := r.presence.Join(participantID, nickname, emoji, now)
	if err != nil {
		// A rejected join can leave the room with zero participants; put it
		// back under a grace timer so it cannot outlive the grace period.
		empty := r.presence.Len() == 0
		r.mu.Unlock()
		if empty && r.onEmpty != nil {
			r.onEmpty(r.Key)
		}
		return nil, nil, err
	}

	ch := r.bcast.Subscribe(participantID)

	others := r.presence.ListActive(now, r.cfg.StalenessWindow)
	states := make([]protocol.ParticipantState, 0, len(others))
	for _, other := range others {
		if other.Info.ID == participantID {
			continue
		}
		states = append(states, other.State())
	}

	snapshot := &protocol.RoomStatePayload{
		Self:         p.Info,
		Participants: states,
		Strokes:      r.doc.Snapshot(),
	}

	r.publishLocked(protocol.DeltaTypeParticipantJoined, participantID, protocol.PresencePayload{Participant: p.Info})
	participants := r.presence.Len()
	r.mu.Unlock()

	log.Info().
		Str("room_key", r.Key).
		Str("participant_id", participantID).
		Str("nickname", p.Info.Nickname).
		Int("participants", participants).
		Msg("participant joined room")

	return snapshot, ch, nil
}

// Leave removes a participant, discarding its in-progress stroke and pending
// outbound queue. Safe to call for ids that already left or were evicted.
func (r *Room) Leave(participantID string) {
	r.mu.Lock()
	p := r.presence.Leave(participantID)
	if p != nil {
		if strokeID, ok := r.doc.DiscardInProgress(participantID); ok {
			r.publishLocked(protocol.DeltaTypeStrokeCancel, participantID, protocol.StrokeCancelPayload{StrokeID: strokeID})
		}
		r.bcast.Unsubscribe(participantID)
		r.publishLocked(protocol.DeltaTypeParticipantLeft, participantID, protocol.PresencePayload{Participant: p.Info})
		log.Info().
			Str("room_key", r.Key).
			Str("participant_id", participantID).
			Int("participants", r.presence.Len()).
			Msg("participant left room")
	}
	empty := p != nil && r.presence.Len() == 0
	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r.Key)
	}
}

// Heartbeat refreshes a participant's liveness.
func (r *Room) Heartbeat(participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Heartbeat(participantID, r.clock.Now())
}

// UpdateCursor overwrites the participant's cursor and broadcasts it with the
// participant snapshot attached.
func (r *Room) UpdateCursor(participantID string, x, y float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.presence.UpdateCursor(participantID, x, y, r.clock.Now()); err != nil {
		return err
	}
	p, _ := r.presence.Get(participantID)
	info := p.Info
	r.publishLocked(protocol.DeltaTypeCursorMove, participantID, protocol.CursorPayload{
		X: x, Y: y, Participant: &info,
	})
	return nil
}

// SetDrawing toggles the participant's drawing-activity flag.
func (r *Room) SetDrawing(participantID string, drawing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.presence.SetDrawing(participantID, drawing, r.clock.Now()); err != nil {
		return err
	}
	p, _ := r.presence.Get(participantID)
	info := p.Info
	r.publishLocked(protocol.DeltaTypeDrawingFlag, participantID, protocol.DrawingFlagPayload{
		Drawing: drawing, Participant: &info,
	})
	return nil
}

// StartStroke opens an in-progress stroke for the participant and broadcasts
// the stroke-start delta. A participant draws at most one stroke at a time.
func (r *Room) StartStroke(participantID string, meta protocol.StrokeMeta) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence.Get(participantID)
	if !ok {
		return "", ErrUnknownParticipant
	}

	seq, err := r.presence.NextStrokeSeq(participantID)
	if err != nil {
		return "", err
	}

	stroke, err := r.doc.StartStroke(p.Info, seq, meta)
	if err != nil {
		return "", err
	}

	now := r.clock.Now()
	p.Drawing = true
	p.LastHeartbeat = now

	info := p.Info
	r.publishLocked(protocol.DeltaTypeStrokeStart, participantID, protocol.StrokeStartPayload{
		StrokeID:    stroke.ID,
		Color:       stroke.Color,
		Width:       stroke.Width,
		Effect:      stroke.Effect,
		Participant: &info,
	})
	return stroke.ID, nil
}

// AppendPoint appends one point to the participant's in-progress stroke.
// Appends to unknown, committed or foreign strokes never mutate the document
// and never appear in any other client's delta stream.
func (r *Room) AppendPoint(participantID, strokeID string, point protocol.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.presence.Get(participantID); !ok {
		return ErrUnknownParticipant
	}
	if err := r.doc.AppendPoint(strokeID, participantID, point); err != nil {
		return err
	}
	r.presence.Heartbeat(participantID, r.clock.Now())

	r.publishLocked(protocol.DeltaTypeStrokeAppend, participantID, protocol.StrokeAppendPayload{
		StrokeID: strokeID,
		Point:    point,
	})
	return nil
}

// CommitStroke finalizes the participant's in-progress stroke. Strokes with
// fewer than two points are discarded and announced with a stroke-cancel
// delta instead of a commit.
func (r *Room) CommitStroke(participantID, strokeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence.Get(participantID)
	if !ok {
		return ErrUnknownParticipant
	}

	committed, err := r.doc.CommitStroke(strokeID, participantID)
	if err != nil {
		return err
	}

	p.Drawing = false
	p.LastHeartbeat = r.clock.Now()

	if committed {
		r.publishLocked(protocol.DeltaTypeStrokeCommit, participantID, protocol.StrokeCommitPayload{StrokeID: strokeID})
	} else {
		r.publishLocked(protocol.DeltaTypeStrokeCancel, participantID, protocol.StrokeCancelPayload{StrokeID: strokeID})
	}
	return nil
}

// Undo removes the most recently committed stroke room-wide, regardless of
// who committed it. Undo on an empty document is a no-op, not an error.
func (r *Room) Undo(participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.presence.Heartbeat(participantID, r.clock.Now()); err != nil {
		return err
	}

	removed := r.doc.UndoLast()
	if removed == nil {
		return nil
	}
	r.publishLocked(protocol.DeltaTypeUndo, participantID, protocol.UndoPayload{StrokeID: removed.ID})
	return nil
}

// Clear empties the committed sequence and discards all in-progress strokes
// room-wide.
func (r *Room) Clear(participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.presence.Heartbeat(participantID, r.clock.Now()); err != nil {
		return err
	}

	r.doc.Clear()
	r.publishLocked(protocol.DeltaTypeClear, participantID, nil)
	return nil
}

// EmojiReaction broadcasts an ephemeral reaction. It is never stored in the
// document; delivery is fire-and-forget.
func (r *Room) EmojiReaction(participantID, emoji string, x, y float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.presence.Get(participantID)
	if !ok {
		return ErrUnknownParticipant
	}
	p.LastHeartbeat = r.clock.Now()

	info := p.Info
	r.publishLocked(protocol.DeltaTypeEmojiReaction, participantID, protocol.EmojiReactionPayload{
		Emoji: emoji, X: x, Y: y, Participant: &info,
	})
	return nil
}

// InjectRemote fans a delta relayed from another engine instance out to local
// subscribers. It never re-relays.
func (r *Room) InjectRemote(delta *protocol.Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcast.PublishLocal(delta, delta.Origin)
}

// ParticipantCount returns the number of registered participants.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Len()
}

// ListActive returns the participants currently within the staleness window.
func (r *Room) ListActive() []protocol.ParticipantState {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.presence.ListActive(r.clock.Now(), r.cfg.StalenessWindow)
	states := make([]protocol.ParticipantState, 0, len(active))
	for _, p := range active {
		states = append(states, p.State())
	}
	return states
}

// publishLocked builds and publishes a delta while holding the room lock.
// Enqueueing to subscriber queues never blocks, so no network I/O happens
// under the lock.
func (r *Room) publishLocked(deltaType protocol.DeltaType, origin string, payload any) {
	delta, err := protocol.NewDelta(r.Key, deltaType, origin, payload)
	if err != nil {
		log.Error().Err(err).
			Str("room_key", r.Key).
			Str("delta_type", string(deltaType)).
			Msg("failed to build delta")
		return
	}
	r.bcast.Publish(delta, origin)
}
