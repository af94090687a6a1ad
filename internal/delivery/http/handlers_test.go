package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/delivery/ws"
	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/metrics"
	"github.com/mmuslimabdulj/secret-santa/internal/middleware"
	"github.com/mmuslimabdulj/secret-santa/internal/repository/badgerstore"
	"github.com/mmuslimabdulj/secret-santa/internal/usecase"
)

type testServer struct {
	*httptest.Server
	notifier *ws.Notifier
	registry *prometheus.Registry
	store    *badgerstore.Store
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()

	db, err := badgerstore.Open(badgerstore.Options{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	notifier := ws.NewNotifier(ws.Options{GracePeriod: time.Second}, zap.NewNop())
	t.Cleanup(notifier.Close)

	matcher, err := usecase.NewRingMatcher()
	require.NoError(t, err)

	store := badgerstore.New(db, zap.NewNop())
	svc := usecase.NewRoomService(store, matcher, notifier, zap.NewNop())

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry, zap.NewNop())
	svc.SetMetrics(m)
	if opts.Metrics == nil {
		opts.Metrics = m
	}
	opts.Gatherer = registry
	opts.Version = "test"

	h := NewHandler(svc, notifier, []string{"http://localhost:3000"}, "http://santa.test", zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, opts))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, notifier: notifier, registry: registry, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) createRoom(t *testing.T, id string) createRoomResponse {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/rooms", createRoomRequest{ID: id}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[createRoomResponse](t, resp)
}

func (s *testServer) join(t *testing.T, roomID, name string) domain.Participant {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/rooms/"+roomID+"/participants", joinRequest{Name: name, Wish: "socks"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[domain.Participant](t, resp)
}

func (s *testServer) match(t *testing.T, roomID, token string) *http.Response {
	t.Helper()
	return s.do(t, http.MethodPost, "/api/rooms/"+roomID+"/match", nil, http.Header{CreatorTokenHeader: {token}})
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	created := s.createRoom(t, "")

	assert.Len(t, created.Room.ID, 2*domain.RoomIDBytes)
	assert.Equal(t, domain.RoomStatusCollecting, created.Room.Status)
	assert.Len(t, created.CreatorToken, 2*domain.CreatorTokenBytes)
	assert.Equal(t, "http://santa.test/api/rooms/"+created.Room.ID, created.ShareURL)
}

func TestCreateRoom_ChosenID(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	created := s.createRoom(t, "office-party")
	assert.Equal(t, "office-party", created.Room.ID)

	resp := s.do(t, http.MethodPost, "/api/rooms", createRoomRequest{ID: "office-party"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.CodeRoomIDTaken, decodeBody[errorResponse](t, resp).Error.Code)
}

func TestCreateRoom_BadInput(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	tests := []struct {
		name string
		body string
		code domain.Code
	}{
		{"malformed json", "{", codeInvalidJSON},
		{"id too long for validator", `{"id":"` + strings.Repeat("a", 65) + `"}`, codeInvalidRequest},
		{"id bad shape", `{"id":"Bad ID"}`, domain.CodeInvalidRoomID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Client().Post(s.URL+"/api/rooms", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, resp).Error.Code)
		})
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	resp := s.do(t, http.MethodGet, "/api/rooms/missing-room", nil, nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, domain.CodeRoomNotFound, decodeBody[errorResponse](t, resp).Error.Code)
}

func TestJoinAndList(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	alice := s.join(t, room.ID, "Alice")
	bob := s.join(t, room.ID, "  Bob  ")

	assert.Equal(t, "Bob", bob.Name)
	assert.Less(t, alice.Seq, bob.Seq)

	resp := s.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/participants", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]domain.Participant](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, alice.ID, list[0].ID)
	assert.Equal(t, bob.ID, list[1].ID)

	resp = s.do(t, http.MethodGet, "/api/rooms/"+room.ID, nil, nil)
	snap := decodeBody[domain.Snapshot](t, resp)
	assert.Equal(t, room.ID, snap.Room.ID)
	assert.Len(t, snap.Participants, 2)
}

func TestJoin_Validation(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	tests := []struct {
		name string
		req  joinRequest
		code domain.Code
	}{
		{"blank name", joinRequest{Name: "  ", Wish: "socks"}, domain.CodeNameRequired},
		{"blank wish", joinRequest{Name: "Alice", Wish: ""}, domain.CodeWishRequired},
		{"long name", joinRequest{Name: strings.Repeat("n", domain.MaxNameLength+1), Wish: "socks"}, domain.CodeNameTooLong},
		{"huge wish", joinRequest{Name: "Alice", Wish: strings.Repeat("w", 5000)}, codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/participants", tt.req, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, resp).Error.Code)
		})
	}
}

func TestMatchFlow(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	created := s.createRoom(t, "")
	roomID := created.Room.ID

	alice := s.join(t, roomID, "Alice")
	bob := s.join(t, roomID, "Bob")
	carol := s.join(t, roomID, "Carol")

	// recipient before match
	resp := s.do(t, http.MethodGet, "/api/rooms/"+roomID+"/participants/"+alice.ID+"/recipient", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.CodeRoomNotMatched, decodeBody[errorResponse](t, resp).Error.Code)

	resp = s.match(t, roomID, "wrong-token")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.match(t, roomID, created.CreatorToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matched := decodeBody[domain.Room](t, resp)
	assert.Equal(t, domain.RoomStatusMatched, matched.Status)
	require.NoError(t, domain.ValidateAssignment([]string{alice.ID, bob.ID, carol.ID}, matched.Assignment))

	resp = s.do(t, http.MethodGet, "/api/rooms/"+roomID+"/participants/"+alice.ID+"/recipient", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recipient := decodeBody[domain.Participant](t, resp)
	assert.Equal(t, matched.Assignment[alice.ID], recipient.ID)

	// second match reports the committed room
	resp = s.match(t, roomID, created.CreatorToken)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, domain.CodeRoomNotCollecting, body.Error.Code)
	require.NotNil(t, body.Room)
	assert.Equal(t, matched.Assignment, body.Room.Assignment)

	// joins are closed
	resp = s.do(t, http.MethodPost, "/api/rooms/"+roomID+"/participants", joinRequest{Name: "Dave", Wish: "tea"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRecipient_Unresolved(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	created := s.createRoom(t, "")
	roomID := created.Room.ID

	alice := s.join(t, roomID, "Alice")
	bob := s.join(t, roomID, "Bob")

	// an assignment whose ring runs through someone no longer on the roster
	snap, err := s.store.Snapshot(context.Background(), roomID)
	require.NoError(t, err)
	next := snap.Room
	next.Status = domain.RoomStatusMatched
	next.Assignment = domain.Assignment{alice.ID: "gone", "gone": bob.ID, bob.ID: alice.ID}
	next.Version++
	require.NoError(t, s.store.CompareAndSwapRoom(context.Background(), next, domain.RoomStatusCollecting, snap.Room.Version))

	tests := []struct {
		name    string
		giverID string
	}{
		{"dangling recipient", alice.ID},
		{"unknown giver", "stranger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, "/api/rooms/"+roomID+"/participants/"+tt.giverID+"/recipient", nil, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			assert.Equal(t, domain.CodeAssignmentUnresolved, decodeBody[errorResponse](t, resp).Error.Code)
		})
	}

	resp := s.do(t, http.MethodGet, "/api/rooms/"+roomID+"/participants/"+bob.ID+"/recipient", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.ID, decodeBody[domain.Participant](t, resp).ID)
}

func TestGetRoom_MalformedIDIsNotFound(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	for _, id := range []string{"abc", "Room-ABCDEFGH"} {
		resp := s.do(t, http.MethodGet, "/api/rooms/"+id, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, id)
		assert.Equal(t, domain.CodeRoomNotFound, decodeBody[errorResponse](t, resp).Error.Code)
	}
}

func TestMatch_NotEnoughParticipants(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	created := s.createRoom(t, "")
	s.join(t, created.Room.ID, "Alice")

	resp := s.match(t, created.Room.ID, created.CreatorToken)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.CodeNotEnoughParticipants, decodeBody[errorResponse](t, resp).Error.Code)
}

func TestQR(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	resp := s.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/qr.png", nil, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	resp = s.do(t, http.MethodGet, "/api/rooms/missing-room/qr.png", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/rooms/" + room.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	alice := s.join(t, room.ID, "Alice")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt domain.Event
	require.NoError(t, conn.ReadJSON(&evt))

	assert.Equal(t, domain.EventParticipantAdded, evt.Type)
	p, err := evt.Participant()
	require.NoError(t, err)
	assert.Equal(t, alice.ID, p.ID)
}

func TestWebSocket_CommitRightAfterDialIsDelivered(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	for i := 0; i < 50; i++ {
		room := s.createRoom(t, "").Room
		wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/rooms/" + room.ID + "/events"

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)

		joined := s.join(t, room.ID, "Alice")

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var evt domain.Event
		require.NoError(t, conn.ReadJSON(&evt), "round %d", i)
		p, err := evt.Participant()
		require.NoError(t, err)
		assert.Equal(t, joined.ID, p.ID)

		conn.Close()
	}
}

func TestWebSocket_BadUpgradeDoesNotSubscribe(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	resp := s.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/events", nil, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, s.notifier.Hub(room.ID))
}

func TestWebSocket_UnknownRoom(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/rooms/missing-room/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	room := s.createRoom(t, "").Room

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/rooms/" + room.ID + "/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStrictRateLimit(t *testing.T) {
	s := newTestServer(t, RouterOptions{StrictLimiter: middleware.NewIPRateLimiter(0.001, 1)})

	s.createRoom(t, "")
	resp := s.do(t, http.MethodPost, "/api/rooms", createRoomRequest{}, nil)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHealthVersionMetrics(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.createRoom(t, "")

	resp := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/version", nil, nil)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, "santa vtest\n", buf.String())

	resp = s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf.Reset()
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "santa_rooms_created_total 1")
	assert.Contains(t, buf.String(), `route="/api/rooms"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, RouterOptions{})

	resp := s.do(t, http.MethodGet, "/nope", nil, nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrNameRequired, http.StatusBadRequest},
		{domain.ErrCreatorTokenInvalid, http.StatusForbidden},
		{domain.ErrRoomNotCollecting, http.StatusConflict},
		{domain.ErrAssignmentUnresolved, http.StatusUnprocessableEntity},
		{domain.Transient("get room", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestMessageOf_HidesTransientCause(t *testing.T) {
	err := domain.Transient("get room", context.DeadlineExceeded)

	assert.Equal(t, "service temporarily unavailable", messageOf(err))
	assert.Equal(t, "internal error", messageOf(context.Canceled))
}
