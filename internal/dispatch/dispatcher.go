package dispatch

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"courseboard/internal/notification"
	"courseboard/internal/websocket"
	"courseboard/pkg/events"
)

// Publisher mirrors dispatched events onto a shared backbone so sibling
// instances can reach their own local connections. Implemented by
// relay.Relay; nil means single-instance operation.
type Publisher interface {
	Publish(targetUser int64, data []byte) error
	PublishBroadcast(data []byte) error
}

// Dispatcher converts notifications and broadcast payloads into wire
// events and pushes them to the right live connections. Delivery is
// best-effort and at-most-once per open connection: no retry, no
// acknowledgement, no queueing beyond the per-connection send buffer.
// Durability comes only from the persisted notification fetch path.
type Dispatcher struct {
	registry  *websocket.Registry
	publisher Publisher
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *websocket.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log,
	}
}

// AttachPublisher wires the cross-instance relay. Must be called before
// the dispatcher is shared between goroutines.
func (d *Dispatcher) AttachPublisher(p Publisher) {
	d.publisher = p
}

// DeliverToUser pushes {event:"notification",...} to every open connection
// of the notification's target user. A target with no live connections is
// a silent no-op; the persisted record remains the durable copy. A
// notification without a target user (admin-wide class) is broadcast.
func (d *Dispatcher) DeliverToUser(n *notification.Notification) {
	if n == nil {
		return
	}

	data, err := events.MarshalNotification(n)
	if err != nil {
		d.log.Error().Err(err).Str("notification_id", n.ID).Msg("notification serialization failed")
		return
	}

	userID, targeted := n.TargetUser()
	if !targeted {
		d.broadcastLocal(data)
		d.publishBroadcast(data)
		return
	}

	d.DeliverLocal(userID, data)
	if d.publisher != nil {
		if err := d.publisher.Publish(userID, data); err != nil {
			d.log.Warn().Err(err).Int64("user_id", userID).Msg("relay publish failed")
		}
	}
}

// BroadcastToAll serializes the payload once and pushes the identical
// bytes to every open connection regardless of user identity.
func (d *Dispatcher) BroadcastToAll(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.log.Error().Err(err).Msg("broadcast serialization failed")
		return
	}
	d.broadcastLocal(data)
	d.publishBroadcast(data)
}

// BroadcastRaw relays pre-serialized bytes to every open connection. Used
// by the inbound protocol's catch-all arm.
func (d *Dispatcher) BroadcastRaw(data []byte) {
	d.broadcastLocal(data)
	d.publishBroadcast(data)
}

// DeliverLocal pushes raw bytes to one user's local connections only,
// without touching the relay. The relay consumer enters here so foreign
// events are never republished.
func (d *Dispatcher) DeliverLocal(userID int64, data []byte) {
	conns := d.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		return
	}

	for _, conn := range conns {
		if !conn.IsOpen() {
			// Cleaned up independently by the close handler.
			continue
		}
		if err := conn.SendRaw(data); err != nil {
			d.log.Debug().Err(err).Int64("user_id", userID).Msg("frame dropped")
		}
	}
}

// BroadcastLocal pushes raw bytes to every open local connection without
// touching the relay.
func (d *Dispatcher) BroadcastLocal(data []byte) {
	d.broadcastLocal(data)
}

func (d *Dispatcher) broadcastLocal(data []byte) {
	for _, conn := range d.registry.AllConnections() {
		if !conn.IsOpen() {
			continue
		}
		if err := conn.SendRaw(data); err != nil {
			d.log.Debug().Err(err).Msg("broadcast frame dropped")
		}
	}
}

func (d *Dispatcher) publishBroadcast(data []byte) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.PublishBroadcast(data); err != nil {
		d.log.Warn().Err(err).Msg("relay broadcast publish failed")
	}
}
