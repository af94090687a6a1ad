// Package client is the Go SDK for the room service HTTP and websocket API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// CreatorTokenHeader carries the creator capability on match requests
const CreatorTokenHeader = "X-Creator-Token"

const (
	defaultTimeout  = 10 * time.Second
	readAttempts    = 3
	readBackoffBase = 200 * time.Millisecond
)

// CreateRoomResult is the answer to CreateRoom
type CreateRoomResult struct {
	Room         domain.Room `json:"room"`
	CreatorToken string      `json:"creator_token"`
	ShareURL     string      `json:"share_url"`
}

type apiError struct {
	Error struct {
		Code    domain.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
	Room *domain.Room `json:"room,omitempty"`
}

// Client talks to one room service
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	log        *zap.Logger
	backoff    time.Duration
}

// New creates a client for the server at baseURL
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultTimeout,
		},
		log:     log,
		backoff: readBackoffBase,
	}
}

// ParseRoomRef accepts a bare room id or a share URL and returns the id
func ParseRoomRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "/") {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return path.Base(strings.TrimSuffix(u.Path, "/"))
	}
	return path.Base(strings.TrimSuffix(ref, "/"))
}

// CreateRoom creates a room. An empty id lets the server pick one.
func (c *Client) CreateRoom(ctx context.Context, id string) (CreateRoomResult, error) {
	var out CreateRoomResult
	body := map[string]string{}
	if id != "" {
		body["id"] = id
	}
	err := c.send(ctx, http.MethodPost, "/api/rooms", body, nil, &out)
	return out, err
}

// Snapshot fetches the room with its roster
func (c *Client) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	var out domain.Snapshot
	err := c.get(ctx, "/api/rooms/"+url.PathEscape(roomID), &out)
	return out, err
}

// ListParticipants fetches the roster in join order
func (c *Client) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := c.get(ctx, "/api/rooms/"+url.PathEscape(roomID)+"/participants", &out)
	return out, err
}

// Join adds a participant to the room
func (c *Client) Join(ctx context.Context, roomID, name, wish string) (domain.Participant, error) {
	var out domain.Participant
	body := map[string]string{"name": name, "wish": wish}
	err := c.send(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/participants", body, nil, &out)
	return out, err
}

// StartMatching asks the server to match the room. When the room was already
// matched the returned room is the committed one and the error wraps
// domain.ErrConflict.
func (c *Client) StartMatching(ctx context.Context, roomID, creatorToken string) (domain.Room, error) {
	var out domain.Room
	header := http.Header{CreatorTokenHeader: {creatorToken}}
	err := c.send(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(roomID)+"/match", nil, header, &out)
	var ce *conflictError
	if errors.As(err, &ce) && ce.room != nil {
		return *ce.room, err
	}
	return out, err
}

// Recipient resolves who the giver gives to
func (c *Client) Recipient(ctx context.Context, roomID, giverID string) (domain.Participant, error) {
	var out domain.Participant
	err := c.get(ctx, "/api/rooms/"+url.PathEscape(roomID)+"/participants/"+url.PathEscape(giverID)+"/recipient", &out)
	return out, err
}

// QR fetches the PNG QR code of the room's share link
func (c *Client) QR(ctx context.Context, roomID string) ([]byte, error) {
	var png []byte
	err := c.retryRead(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(roomID)+"/qr.png", nil, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return decodeError(resp)
		}
		png, err = io.ReadAll(resp.Body)
		if err != nil {
			return domain.Transient("read qr", err)
		}
		return nil
	})
	return png, err
}

// get performs an idempotent read, retrying transient failures
func (c *Client) get(ctx context.Context, p string, out any) error {
	return c.retryRead(ctx, func() error {
		return c.send(ctx, http.MethodGet, p, nil, nil, out)
	})
}

func (c *Client) retryRead(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, domain.ErrTransient) {
			return err
		}
		if attempt == readAttempts {
			break
		}
		c.log.Debug("read failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

// send performs one request without retries
func (c *Client) send(ctx context.Context, method, p string, body any, header http.Header, out any) error {
	resp, err := c.do(ctx, method, p, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Transient("decode response", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", p), zap.Error(err))
		return nil, domain.Transient(method+" "+p, err)
	}
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", p),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// conflictError carries the committed room of a lost match
type conflictError struct {
	err  *domain.Error
	room *domain.Room
}

func (e *conflictError) Error() string { return e.err.Error() }
func (e *conflictError) Unwrap() error { return e.err }

// decodeError turns an error response back into a domain error so callers
// can use errors.Is with the domain kinds
func decodeError(resp *http.Response) error {
	var body apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	code := body.Error.Code
	if code == "" {
		code = domain.CodeUnknown
	}
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	de := &domain.Error{Kind: kindOf(resp.StatusCode), Code: code, Msg: msg}
	if de.Kind == domain.ErrConflict && body.Room != nil {
		return &conflictError{err: de, room: body.Room}
	}
	return de
}

func kindOf(status int) error {
	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusForbidden:
		return domain.ErrForbidden
	case status == http.StatusConflict:
		return domain.ErrConflict
	case status == http.StatusUnprocessableEntity:
		return domain.ErrUnresolvedAssignment
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.ErrTransient
	default:
		return domain.ErrValidation
	}
}
