package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of room event being propagated
type EventType string

const (
	EventParticipantAdded   EventType = "participant_added"
	EventParticipantRemoved EventType = "participant_removed"
	EventRoomStatusChanged  EventType = "room_status_changed"
)

// Event is the envelope delivered to every subscriber of a room channel.
// Seq is the room version after the commit that produced the event.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	RoomID     string          `json:"room_id"`
	Seq        uint64          `json:"seq"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ParticipantRemovedPayload is the payload for participant removal
type ParticipantRemovedPayload struct {
	ID string `json:"id"`
}

// RoomStatusPayload is the payload for room status changes
type RoomStatusPayload struct {
	Status     RoomStatus `json:"status"`
	Assignment Assignment `json:"assignment,omitempty"`
}

func newEvent(t EventType, roomID string, seq uint64, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		RoomID:     roomID,
		Seq:        seq,
		Payload:    data,
		OccurredAt: time.Now().UTC(),
	}
}

// NewParticipantAdded builds the event emitted after a join commits
func NewParticipantAdded(p Participant) Event {
	return newEvent(EventParticipantAdded, p.RoomID, p.Seq, p)
}

// NewParticipantRemoved builds a removal event
func NewParticipantRemoved(roomID, participantID string, seq uint64) Event {
	return newEvent(EventParticipantRemoved, roomID, seq, ParticipantRemovedPayload{ID: participantID})
}

// NewRoomStatusChanged builds the event emitted after a status transition commits
func NewRoomStatusChanged(r Room) Event {
	return newEvent(EventRoomStatusChanged, r.ID, r.Version, RoomStatusPayload{
		Status:     r.Status,
		Assignment: r.Assignment,
	})
}

// Participant decodes a participant_added payload
func (e Event) Participant() (Participant, error) {
	if e.Type != EventParticipantAdded {
		return Participant{}, fmt.Errorf("event %s carries no participant", e.Type)
	}
	var p Participant
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return Participant{}, fmt.Errorf("decode participant payload: %w", err)
	}
	return p, nil
}

// RemovedParticipantID decodes a participant_removed payload
func (e Event) RemovedParticipantID() (string, error) {
	if e.Type != EventParticipantRemoved {
		return "", fmt.Errorf("event %s carries no removal", e.Type)
	}
	var p ParticipantRemovedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return "", fmt.Errorf("decode removal payload: %w", err)
	}
	return p.ID, nil
}

// RoomStatus decodes a room_status_changed payload
func (e Event) RoomStatus() (RoomStatusPayload, error) {
	if e.Type != EventRoomStatusChanged {
		return RoomStatusPayload{}, fmt.Errorf("event %s carries no room status", e.Type)
	}
	var p RoomStatusPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return RoomStatusPayload{}, fmt.Errorf("decode room status payload: %w", err)
	}
	return p, nil
}
