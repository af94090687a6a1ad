package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Forwarder hands locally published events to other server instances
type Forwarder interface {
	Forward(ctx context.Context, roomID string, data []byte) error
}

// Options configures the notifier
type Options struct {
	SubscriberBuffer int
	GracePeriod      time.Duration
	MaxMessageSize   int64
}

// Notifier owns one hub per room with live subscribers. It implements the
// room service's publisher.
type Notifier struct {
	mu        sync.RWMutex
	hubs      map[string]*Hub
	opts      Options
	gauge     Gauge
	forwarder Forwarder
	log       *zap.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(opts Options, log *zap.Logger) *Notifier {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = domain.SubscriberBuffer
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = domain.HubGracePeriod
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = domain.MaxMessageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		hubs:  make(map[string]*Hub),
		opts:  opts,
		gauge: nopGauge{},
		log:   log,
	}
}

// SetGauge sets the subscriber gauge
func (n *Notifier) SetGauge(g Gauge) {
	if g == nil {
		g = nopGauge{}
	}
	n.gauge = g
}

// SetForwarder sets the cross-instance forwarder
func (n *Notifier) SetForwarder(f Forwarder) {
	n.forwarder = f
}

// Publish delivers an event to local subscribers, then forwards it
func (n *Notifier) Publish(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	n.Deliver(evt.RoomID, data)

	if n.forwarder != nil {
		if err := n.forwarder.Forward(ctx, evt.RoomID, data); err != nil {
			return fmt.Errorf("forward event: %w", err)
		}
	}
	return nil
}

// Deliver fans an encoded event out to the room's local subscribers.
// Rooms without subscribers drop it.
func (n *Notifier) Deliver(roomID string, data []byte) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if h, ok := n.hubs[roomID]; ok {
		h.Broadcast(data)
	}
}

// Subscribe registers a subscriber on the room's hub. Events broadcast after
// it returns are queued for the client. conn may be nil and attached later
// with Client.Attach; the caller runs the pumps once a conn is attached.
func (n *Notifier) Subscribe(roomID string, conn *websocket.Conn) *Client {
	n.mu.Lock()
	defer n.mu.Unlock()

	h := n.hubLocked(roomID)
	c := NewClient(h, conn, n.opts.SubscriberBuffer)
	c.maxMessageSize = n.opts.MaxMessageSize
	h.Register(c)
	return c
}

// hubLocked returns the room's hub, starting one if needed.
// NOTE: Caller must hold n.mu
func (n *Notifier) hubLocked(roomID string) *Hub {
	if h, ok := n.hubs[roomID]; ok {
		return h
	}
	h := NewHub(roomID)
	h.notifier = n
	h.gracePeriod = n.opts.GracePeriod
	h.gauge = n.gauge
	h.log = n.log
	n.hubs[roomID] = h
	go h.Run()
	return h
}

// deleteHubIfIdle tears a hub down if nobody subscribed during the grace period
func (n *Notifier) deleteHubIfIdle(h *Hub) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hubs[h.roomID] != h || h.ClientCount() > 0 {
		return
	}
	delete(n.hubs, h.roomID)
	h.stop()
	n.log.Debug("room hub closed", zap.String("room_id", h.roomID))
}

// Hub returns the live hub for a room, or nil
func (n *Notifier) Hub(roomID string) *Hub {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hubs[roomID]
}

// HubCount returns the number of rooms with a live hub
func (n *Notifier) HubCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.hubs)
}

// Close stops every hub and disconnects its subscribers
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, h := range n.hubs {
		h.mu.Lock()
		for _, c := range h.clients {
			delete(h.clients, c.ID)
			close(c.send)
			n.gauge.Dec()
		}
		h.mu.Unlock()
		h.stop()
		delete(n.hubs, id)
	}
}
