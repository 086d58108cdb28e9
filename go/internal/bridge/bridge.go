// Package bridge relays room deltas between engine instances over NATS so
// activity in a room is visible to sessions connected to other processes.
//
// Only the live delta stream crosses instances: relayed deltas fan out to
// local subscribers but are never applied to the local document, so each
// instance's document holds only the strokes its own participants committed.
// Deployments that need one authoritative document per room must route all of
// a room's connections to a single instance (for example by hashing the room
// key at the load balancer); the relay then serves cross-instance visibility,
// and a client re-synchronizes the document by rejoining on the owning
// instance. Delivery is best-effort and at-most-once with no replay, matching
// the in-process broadcaster's contract.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/protocol"
	"github.com/mcdev12/scribble/go/internal/room"
)

// Config holds configuration for the NATS relay.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Buffer        int // Pending outbound deltas before drops
}

// DefaultConfig returns default bridge configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "scribble.rooms",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		Buffer:        1024,
	}
}

// envelope wraps a relayed delta with the publishing instance id so an
// instance never re-applies its own deltas.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Delta      *protocol.Delta `json:"delta"`
}

// Bridge republishes local room deltas to NATS and injects deltas published
// by other instances into the local fan-out.
type Bridge struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	config     Config
	instanceID string
	registry   *room.Registry
	out        chan *protocol.Delta
}

// New connects to NATS and wires the bridge into the registry as its relay.
func New(cfg Config, registry *room.Registry) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &Bridge{
		nc:         nc,
		config:     cfg,
		instanceID: uuid.New().String(),
		registry:   registry,
		out:        make(chan *protocol.Delta, cfg.Buffer),
	}

	registry.SetRelay(b.Relay)
	return b, nil
}

// Relay enqueues a locally published delta for NATS publication. It never
// blocks; under pressure deltas are dropped, consistent with best-effort
// delivery.
func (b *Bridge) Relay(delta *protocol.Delta) {
	select {
	case b.out <- delta:
	default:
		log.Warn().
			Str("room_key", delta.RoomKey).
			Str("delta_type", string(delta.Type)).
			Msg("bridge outbound buffer full, dropping delta")
	}
}

// Start subscribes to the relay subjects and publishes outbound deltas until
// the context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.config.SubjectPrefix+".>", b.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to relay subjects: %w", err)
	}
	b.sub = sub

	log.Info().
		Str("instance_id", b.instanceID).
		Str("subject_prefix", b.config.SubjectPrefix).
		Msg("bridge started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bridge shutting down")
			return nil
		case delta := <-b.out:
			if err := b.publish(delta); err != nil {
				log.Error().
					Err(err).
					Str("room_key", delta.RoomKey).
					Msg("failed to publish delta")
			}
		}
	}
}

func (b *Bridge) publish(delta *protocol.Delta) error {
	data, err := json.Marshal(envelope{InstanceID: b.instanceID, Delta: delta})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.nc.Publish(SubjectFor(b.config.SubjectPrefix, delta.RoomKey), data)
}

// handleMessage injects a delta relayed by another instance into the local
// room, if the room exists here. Rooms are never created for relayed deltas.
func (b *Bridge) handleMessage(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to unmarshal relayed delta")
		return
	}
	if env.InstanceID == b.instanceID || env.Delta == nil {
		return
	}

	rm, ok := b.registry.GetRoom(env.Delta.RoomKey)
	if !ok {
		return
	}
	rm.InjectRemote(env.Delta)
}

// Stop unsubscribes and closes the NATS connection.
func (b *Bridge) Stop() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe bridge")
		}
	}
	b.nc.Close()
	log.Info().Msg("bridge stopped")
	return nil
}

// SubjectFor returns the relay subject for a room key.
func SubjectFor(prefix, roomKey string) string {
	return prefix + "." + roomKey
}
