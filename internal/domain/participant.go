package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Participant is a named entrant in a room. Participants are never mutated once created.
type Participant struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	Name     string    `json:"name"`
	Wish     string    `json:"wish"`
	Seq      uint64    `json:"seq"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewParticipant trims and validates a join request. The id and seq are assigned by the repository.
func NewParticipant(roomID, name, wish string) (Participant, error) {
	name = strings.TrimSpace(name)
	wish = strings.TrimSpace(wish)

	switch {
	case name == "":
		return Participant{}, ErrNameRequired
	case wish == "":
		return Participant{}, ErrWishRequired
	case utf8.RuneCountInString(name) > MaxNameLength:
		return Participant{}, ErrNameTooLong
	case utf8.RuneCountInString(wish) > MaxWishLength:
		return Participant{}, ErrWishTooLong
	}

	return Participant{
		RoomID:   roomID,
		Name:     name,
		Wish:     wish,
		JoinedAt: time.Now().UTC(),
	}, nil
}

// Snapshot is a point-in-time read of a room and its roster
type Snapshot struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
}

// ParticipantIDs returns the roster ids in roster order
func (s Snapshot) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}

// Find returns the participant with the given id
func (s Snapshot) Find(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}
