package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"time"
)

// RoomStatus is the persisted lifecycle state of a room
type RoomStatus string

const (
	RoomStatusCollecting RoomStatus = "collecting"
	RoomStatusMatched    RoomStatus = "matched"
)

// Valid reports whether s is a persisted room status
func (s RoomStatus) Valid() bool {
	return s == RoomStatusCollecting || s == RoomStatusMatched
}

// Trigger is an operation that may move a room between states
type Trigger string

const (
	TriggerJoin          Trigger = "join"
	TriggerStartMatching Trigger = "start_matching"
)

// Transition is a single allowed edge in the room lifecycle
type Transition struct {
	From    RoomStatus
	To      RoomStatus
	Trigger Trigger
}

var transitionsTable = []Transition{
	{From: RoomStatusCollecting, To: RoomStatusCollecting, Trigger: TriggerJoin},
	{From: RoomStatusCollecting, To: RoomStatusMatched, Trigger: TriggerStartMatching},
}

// TransitionFor returns the allowed transition for a given state and trigger
func TransitionFor(from RoomStatus, trigger Trigger) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Trigger == trigger {
			return tr, true
		}
	}
	return Transition{}, false
}

// roomIDRegex matches caller-chosen room ids
var roomIDRegex = regexp.MustCompile(`^[a-z0-9-]{8,64}$`)

// ValidateRoomID checks the shape of a room id
func ValidateRoomID(id string) error {
	if !roomIDRegex.MatchString(id) {
		return ErrInvalidRoomID
	}
	return nil
}

// Room is a gift-exchange session
type Room struct {
	ID         string     `json:"id"`
	Status     RoomStatus `json:"status"`
	Assignment Assignment `json:"assignment,omitempty"`
	Version    uint64     `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	MatchedAt  *time.Time `json:"matched_at,omitempty"`

	// CreatorTokenHash is the digest of the creator capability, never serialized
	CreatorTokenHash string `json:"-"`
}

// NewRoom creates a collecting room guarded by the given creator token
func NewRoom(id, creatorToken string) Room {
	return Room{
		ID:               id,
		Status:           RoomStatusCollecting,
		CreatedAt:        time.Now().UTC(),
		CreatorTokenHash: HashCreatorToken(creatorToken),
	}
}

// CanJoin reports whether participants may still be added
func (r Room) CanJoin() bool {
	_, ok := TransitionFor(r.Status, TriggerJoin)
	return ok
}

// IsCreator checks a presented creator token against the stored digest
func (r Room) IsCreator(token string) bool {
	if token == "" || r.CreatorTokenHash == "" {
		return false
	}
	presented := HashCreatorToken(token)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(r.CreatorTokenHash)) == 1
}

// Match applies the collecting → matched transition for the roster ids.
// It returns the room as it must be persisted; r is left untouched.
func (r Room) Match(participantIDs []string, assignment Assignment, at time.Time) (Room, error) {
	tr, ok := TransitionFor(r.Status, TriggerStartMatching)
	if !ok {
		return r, ErrRoomNotCollecting
	}
	if len(participantIDs) < MinParticipants {
		return r, ErrNotEnoughParticipants
	}
	if err := ValidateAssignment(participantIDs, assignment); err != nil {
		return r, err
	}

	matchedAt := at.UTC()
	next := r
	next.Status = tr.To
	next.Assignment = assignment.Clone()
	next.MatchedAt = &matchedAt
	next.Version = r.Version + 1
	return next, nil
}

// HashCreatorToken returns the hex SHA-256 digest stored for a creator token
func HashCreatorToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
