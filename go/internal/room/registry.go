package room

import (
	"context"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry is the process-wide table of active rooms. Rooms are created on
// first lookup and torn down once empty past the grace period; a rejoin
// inside that window cancels the teardown. Every room with zero participants
// is under a grace timer, including rooms whose only join attempt was
// rejected or never arrived.
type Registry struct {
	cfg   Config
	clock clockwork.Clock

	mu             sync.Mutex
	rooms          map[string]*Room
	teardownTimers map[string]clockwork.Timer

	ctx    context.Context
	cancel context.CancelFunc

	relay RelayFunc
}

// NewRegistry creates a registry. Rooms created by it run their staleness
// sweeps on the given clock until Close is called.
func NewRegistry(cfg Config, clock clockwork.Clock) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:            cfg,
		clock:          clock,
		rooms:          make(map[string]*Room),
		teardownTimers: make(map[string]clockwork.Timer),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetRelay installs a delta relay applied to every room, current and future.
func (g *Registry) SetRelay(relay RelayFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relay = relay
	for _, r := range g.rooms {
		r.SetRelay(relay)
	}
}

// GetOrCreateRoom returns the room for a key, creating it on first use. Keys
// are case-normalized before lookup; concurrent creation of the same key
// resolves to exactly one Room instance. A pending teardown for the key is
// cancelled.
func (g *Registry) GetOrCreateRoom(key string) *Room {
	key = NormalizeKey(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelTeardownLocked(key)

	if r, exists := g.rooms[key]; exists {
		return r
	}

	r := newRoom(key, g.cfg, g.clock, g.scheduleTeardown)
	if g.relay != nil {
		r.SetRelay(g.relay)
	}
	g.rooms[key] = r
	r.start(g.ctx)

	// A new room starts empty, so it goes straight under a grace timer. A
	// successful join makes the timer a no-op; a client that never joins
	// cannot pin the room forever.
	g.scheduleTeardownLocked(key)

	log.Info().Str("room_key", key).Msg("created room")
	return r
}

// GetRoom returns an existing room without creating one.
func (g *Registry) GetRoom(key string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[NormalizeKey(key)]
	return r, ok
}

// ReleaseParticipant removes a participant from a room. The room schedules
// its own teardown once the last participant is gone.
func (g *Registry) ReleaseParticipant(key, participantID string) {
	if r, ok := g.GetRoom(key); ok {
		r.Leave(participantID)
	}
}

// scheduleTeardown arms the grace timer for an empty room. An existing timer
// for the key is replaced so repeated empty notifications stay idempotent.
func (g *Registry) scheduleTeardown(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scheduleTeardownLocked(key)
}

func (g *Registry) scheduleTeardownLocked(key string) {
	if _, exists := g.rooms[key]; !exists {
		return
	}

	if existing, ok := g.teardownTimers[key]; ok {
		existing.Stop()
	}

	// AfterFunc keeps cancellation goroutine-free; a timer that fires after
	// being replaced or cancelled fails the identity check and does nothing.
	var timer clockwork.Timer
	timer = g.clock.AfterFunc(g.cfg.GracePeriod, func() {
		g.teardownIfEmpty(key, timer)
	})
	g.teardownTimers[key] = timer

	log.Debug().
		Str("room_key", key).
		Dur("grace_period", g.cfg.GracePeriod).
		Msg("scheduled room teardown")
}

// cancelTeardownLocked stops a pending teardown timer for the key, if any.
func (g *Registry) cancelTeardownLocked(key string) {
	if timer, ok := g.teardownTimers[key]; ok {
		timer.Stop()
		delete(g.teardownTimers, key)
		log.Debug().Str("room_key", key).Msg("cancelled room teardown")
	}
}

// teardownIfEmpty destroys the room unless a participant rejoined while the
// grace timer was running. The timer argument guards against a stale firing
// racing a cancellation: only the currently armed timer may tear down.
func (g *Registry) teardownIfEmpty(key string, timer clockwork.Timer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.teardownTimers[key] != timer {
		return
	}
	delete(g.teardownTimers, key)

	r, exists := g.rooms[key]
	if !exists {
		return
	}
	if r.ParticipantCount() > 0 {
		return
	}

	r.stop()
	delete(g.rooms, key)
	log.Info().Str("room_key", key).Msg("room torn down after grace period")
}

// RoomCount returns the number of active rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Stats returns per-room participant counts keyed by room key.
func (g *Registry) Stats() map[string]int {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	stats := make(map[string]int, len(rooms))
	for _, r := range rooms {
		stats[r.Key] = r.ParticipantCount()
	}
	return stats
}

// Close tears down every room and stops all timers and sweeps.
func (g *Registry) Close() {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	for key, timer := range g.teardownTimers {
		timer.Stop()
		delete(g.teardownTimers, key)
	}
	for key, r := range g.rooms {
		r.stop()
		delete(g.rooms, key)
	}
	log.Info().Msg("room registry closed")
}

// NormalizeKey upper-cases a room key for lookup. Key syntax validation is
// the boundary's concern, not the registry's.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}
