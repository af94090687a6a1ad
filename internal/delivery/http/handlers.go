package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/delivery/ws"
	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/middleware"
)

// CreatorTokenHeader carries the creator capability on match requests
const CreatorTokenHeader = "X-Creator-Token"

const (
	maxBodyBytes = 16 << 10
	qrSize       = 320 // mobile-friendly size
)

// RoomService is the room lifecycle the handlers drive
type RoomService interface {
	CreateRoom(ctx context.Context, id string) (domain.Room, string, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	Join(ctx context.Context, roomID, name, wish string) (domain.Participant, error)
	StartMatching(ctx context.Context, roomID, creatorToken string) (domain.Room, error)
	Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	ResolveRecipient(ctx context.Context, roomID, giverID string) (domain.Participant, error)
}

// Subscriber registers websocket clients on room channels
type Subscriber interface {
	Subscribe(roomID string, conn *websocket.Conn) *ws.Client
}

type createRoomRequest struct {
	ID string `json:"id" validate:"omitempty,max=64"`
}

type createRoomResponse struct {
	Room         domain.Room `json:"room"`
	CreatorToken string      `json:"creator_token"`
	ShareURL     string      `json:"share_url"`
}

// joinRequest bounds raw input size; trimming and rune limits are domain rules
type joinRequest struct {
	Name string `json:"name" validate:"max=1024"`
	Wish string `json:"wish" validate:"max=4096"`
}

type Handler struct {
	rooms          RoomService
	subscriber     Subscriber
	validate       *validator.Validate
	upgrader       websocket.Upgrader
	allowedOrigins []string
	publicURL      string
	log            *zap.Logger
}

func NewHandler(rooms RoomService, subscriber Subscriber, allowedOrigins []string, publicURL string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		rooms:          rooms,
		subscriber:     subscriber,
		validate:       validator.New(),
		allowedOrigins: allowedOrigins,
		publicURL:      strings.TrimSuffix(publicURL, "/"),
		log:            log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.isOriginAllowed,
	}
	return h
}

// isOriginAllowed checks if the origin is in the allowed list
func (h *Handler) isOriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Empty origin is allowed (non-browser clients)
	if origin == "" {
		return true
	}
	return middleware.OriginAllowed(h.allowedOrigins, origin)
}

// ShareURL returns the link participants use to reach a room
func (h *Handler) ShareURL(roomID string) string {
	return h.publicURL + "/api/rooms/" + roomID
}

// decode reads a bounded JSON body into v and validates it. An empty body
// decodes as the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, codeInvalidJSON, "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeBadRequest(w, codeInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
	return "invalid request"
}

// HandleCreateRoom creates a new room and returns it with the creator token
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, token, err := h.rooms.CreateRoom(r.Context(), strings.TrimSpace(req.ID))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		Room:         room,
		CreatorToken: token,
		ShareURL:     h.ShareURL(room.ID),
	})
}

// HandleGetRoom returns the room snapshot
func (h *Handler) HandleGetRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.rooms.Snapshot(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleListParticipants returns the roster in join order
func (h *Handler) HandleListParticipants(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	participants, err := h.rooms.ListParticipants(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

// HandleJoin adds a participant
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.rooms.Join(r.Context(), ps.ByName("id"), req.Name, req.Wish)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleStartMatching runs the match for the room creator. A lost race
// answers 409 with the room as committed by the winner.
func (h *Handler) HandleStartMatching(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token := r.Header.Get(CreatorTokenHeader)

	room, err := h.rooms.StartMatching(r.Context(), ps.ByName("id"), token)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) && room.ID != "" {
			writeErrorWithRoom(w, err, &room)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// HandleRecipient resolves the participant the giver gives to
func (h *Handler) HandleRecipient(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	recipient, err := h.rooms.ResolveRecipient(r.Context(), ps.ByName("id"), ps.ByName("pid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipient)
}

// HandleQR renders the room's share link as a PNG QR code
func (h *Handler) HandleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room, err := h.rooms.GetRoom(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := qrcode.Encode(h.ShareURL(room.ID), qrcode.Medium, qrSize)
	if err != nil {
		h.log.Error("qr generation failed", zap.String("room_id", room.ID), zap.Error(err))
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// HandleWebSocket subscribes the connection to the room's events
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	room, err := h.rooms.GetRoom(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) || !h.isOriginAllowed(r) {
		// Upgrade writes the matching HTTP error
		_, _ = h.upgrader.Upgrade(w, r, nil)
		return
	}

	// Register before the handshake completes, so every event committed
	// after the client sees 101 is already queued for it
	client := h.subscriber.Subscribe(room.ID, nil)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		client.Unsubscribe()
		return
	}
	client.Attach(conn)

	go client.WritePump()
	go client.ReadPump()
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleVersion reports the build version
func HandleVersion(version string) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "santa v"+version+"\n")
	}
}
