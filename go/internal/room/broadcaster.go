package room

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/protocol"
)

// RelayFunc forwards a locally published delta to an external fan-out (for
// example the NATS bridge). It must not block.
type RelayFunc func(*protocol.Delta)

type subscriber struct {
	id string
	ch chan *protocol.Delta
}

// Broadcaster fans deltas out to every subscribed session in a room. It is
// unguarded like the other per-room state; the owning Room serializes all
// calls, and delivery is decoupled through per-subscriber buffered queues so
// a slow client never stalls the room.
type Broadcaster struct {
	roomKey string
	subs    map[string]*subscriber
	buffer  int
	relay   RelayFunc
}

// NewBroadcaster creates a broadcaster whose subscriber queues hold up to
// buffer pending deltas each.
func NewBroadcaster(roomKey string, buffer int) *Broadcaster {
	return &Broadcaster{
		roomKey: roomKey,
		subs:    make(map[string]*subscriber),
		buffer:  buffer,
	}
}

// SetRelay installs an external relay invoked for every published delta.
func (b *Broadcaster) SetRelay(relay RelayFunc) {
	b.relay = relay
}

// Subscribe registers a session under its participant id and returns the
// channel its outbound deltas arrive on.
func (b *Broadcaster) Subscribe(participantID string) <-chan *protocol.Delta {
	sub := &subscriber{
		id: participantID,
		ch: make(chan *protocol.Delta, b.buffer),
	}
	b.subs[participantID] = sub
	return sub.ch
}

// Unsubscribe drops a subscriber and closes its queue, discarding anything
// still pending.
func (b *Broadcaster) Unsubscribe(participantID string) {
	sub, ok := b.subs[participantID]
	if !ok {
		return
	}
	delete(b.subs, participantID)
	close(sub.ch)
}

// Publish delivers a delta to every subscriber except the origin, best-effort
// and at-most-once, then hands it to the relay if one is installed.
func (b *Broadcaster) Publish(delta *protocol.Delta, excludeID string) {
	b.PublishLocal(delta, excludeID)
	if b.relay != nil {
		b.relay(delta)
	}
}

// PublishLocal fans a delta out to local subscribers only. Relayed deltas
// arriving from another engine instance take this path so they are never
// re-relayed. A subscriber whose queue is full is dropped; its session
// notices the closed channel and the client re-synchronizes by rejoining.
func (b *Broadcaster) PublishLocal(delta *protocol.Delta, excludeID string) {
	var overflowed []string
	for id, sub := range b.subs {
		if id == excludeID {
			continue
		}
		select {
		case sub.ch <- delta:
		default:
			log.Warn().
				Str("room_key", b.roomKey).
				Str("participant_id", id).
				Str("delta_type", string(delta.Type)).
				Msg("subscriber queue full, dropping subscriber")
			overflowed = append(overflowed, id)
		}
	}
	for _, id := range overflowed {
		b.Unsubscribe(id)
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	return len(b.subs)
}
