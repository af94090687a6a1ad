package client

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/roomview"
)

const (
	eventBuffer    = 64
	reconnectDelay = time.Second
)

// Subscription is a live websocket feed of one room's events
type Subscription struct {
	conn   *websocket.Conn
	events chan domain.Event
	err    error
}

// Events is closed when the connection ends; Err then reports why
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// Err is only meaningful after Events is closed
func (s *Subscription) Err() error {
	return s.err
}

func (s *Subscription) Close() error {
	return s.conn.Close()
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		var evt domain.Event
		if err := s.conn.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			return
		}
		select {
		case s.events <- evt:
		case <-ctx.Done():
			s.err = ctx.Err()
			return
		}
	}
}

// Subscribe opens the room's event stream. Only events published after the
// subscription is established are delivered.
func (c *Client) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	u, err := url.Parse(c.baseURL + "/api/rooms/" + url.PathEscape(roomID) + "/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, domain.Transient("subscribe", err)
	}

	sub := &Subscription{conn: conn, events: make(chan domain.Event, eventBuffer)}
	go sub.readLoop(ctx)
	return sub, nil
}

// Watch runs a live session for one room: subscribe, then fetch the
// snapshot, then fold every event into the view. onView is called with every
// new view. When the stream drops, Watch subscribes and snapshots again.
// It returns nil when ctx ends and an error when the room does not exist.
func (c *Client) Watch(ctx context.Context, roomID, meID string, onView func(roomview.View)) error {
	view := roomview.Loading(roomID, meID)
	onView(view)

	for {
		err := c.watchOnce(ctx, roomID, &view, onView)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return err
		}

		c.log.Info("room stream lost, reconnecting", zap.String("room_id", roomID), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) watchOnce(ctx context.Context, roomID string, view *roomview.View, onView func(roomview.View)) error {
	sub, err := c.Subscribe(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			*view = roomview.Failed(*view, err)
			onView(*view)
		}
		return err
	}
	defer sub.Close()

	snap, err := c.Snapshot(ctx, roomID)
	if err != nil {
		*view = roomview.Failed(*view, err)
		onView(*view)
		return err
	}

	// keep the one-shot reveal from firing again after a reconnect
	wasResolved := view.Recipient != nil
	mounted := roomview.Mount(snap, view.MeID)
	if wasResolved {
		mounted.Revealed = false
	}
	*view = mounted
	onView(*view)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errors.New("room stream closed")
			}
			*view = roomview.Reduce(*view, evt)
			onView(*view)
		}
	}
}
