package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Gauge tracks the number of live subscribers
type Gauge interface {
	Inc()
	Dec()
}

type nopGauge struct{}

func (nopGauge) Inc() {}
func (nopGauge) Dec() {}

// Hub maintains the subscribers of one room and fans out its events in
// the order they were broadcast.
type Hub struct {
	mu          sync.RWMutex
	roomID      string
	gracePeriod time.Duration

	clients       map[string]*Client
	broadcast     chan []byte
	register      chan *Client
	unregister    chan *Client
	done          chan struct{}
	notifier      *Notifier
	shutdownTimer *time.Timer
	gauge         Gauge
	log           *zap.Logger
}

// NewHub creates a new Hub for a room
func NewHub(roomID string) *Hub {
	return &Hub{
		roomID:      roomID,
		gracePeriod: 60 * time.Second,
		clients:     make(map[string]*Client),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		gauge:       nopGauge{},
		log:         zap.NewNop(),
	}
}

// cancelShutdown stops pending destroy timer
func (h *Hub) cancelShutdown() {
	if h.shutdownTimer != nil {
		h.shutdownTimer.Stop()
		h.shutdownTimer = nil
	}
}

// scheduleShutdown starts the grace period timer.
// NOTE: Caller must hold h.mu
func (h *Hub) scheduleShutdown() {
	if h.notifier == nil {
		return
	}
	h.cancelShutdown()
	// Wait before destroying an empty hub to allow reconnects
	h.shutdownTimer = time.AfterFunc(h.gracePeriod, func() {
		h.notifier.deleteHubIfIdle(h)
	})
}

// Run starts the hub's main event loop. It returns once the hub is stopped.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.cancelShutdown()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.gauge.Inc()
			h.log.Debug("subscriber joined", zap.String("room_id", h.roomID), zap.String("client_id", client.ID), zap.Int("subscribers", count))

		case client := <-h.unregister:
			h.mu.Lock()
			// Check if client exists - prevent double unregister
			if _, ok := h.clients[client.ID]; !ok {
				h.mu.Unlock()
				continue
			}
			h.removeLocked(client)
			h.mu.Unlock()

			h.log.Debug("subscriber left", zap.String("room_id", h.roomID), zap.String("client_id", client.ID))

		case message := <-h.broadcast:
			h.mu.Lock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full, close connection and remove client.
					// It has to re-subscribe and read a fresh snapshot.
					h.log.Warn("dropping slow subscriber", zap.String("room_id", h.roomID), zap.String("client_id", client.ID))
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// removeLocked drops a client and closes its queue.
// NOTE: Caller must hold h.mu
func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.ID)
	close(client.send)
	h.gauge.Dec()
	if len(h.clients) == 0 {
		h.scheduleShutdown()
	}
}

// stop ends the Run loop
func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelShutdown()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
