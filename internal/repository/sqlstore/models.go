package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

type roomModel struct {
	ID               string         `gorm:"primaryKey;size:64"`
	Status           string         `gorm:"size:16;not null"`
	Assignment       datatypes.JSON `gorm:"type:json"`
	Version          uint64         `gorm:"not null;default:0"`
	CreatorTokenHash string         `gorm:"size:64;not null"`
	CreatedAt        time.Time      `gorm:"not null"`
	MatchedAt        *time.Time
}

func (roomModel) TableName() string { return "rooms" }

type participantModel struct {
	ID       string    `gorm:"primaryKey;size:36"`
	RoomID   string    `gorm:"size:64;not null;uniqueIndex:idx_participants_room_seq"`
	Seq      uint64    `gorm:"not null;uniqueIndex:idx_participants_room_seq"`
	Name     string    `gorm:"size:256;not null"`
	Wish     string    `gorm:"size:1024;not null"`
	JoinedAt time.Time `gorm:"not null"`
}

func (participantModel) TableName() string { return "participants" }

func fromRoom(r domain.Room) (roomModel, error) {
	m := roomModel{
		ID:               r.ID,
		Status:           string(r.Status),
		Version:          r.Version,
		CreatorTokenHash: r.CreatorTokenHash,
		CreatedAt:        r.CreatedAt,
		MatchedAt:        r.MatchedAt,
	}
	if r.Assignment != nil {
		data, err := json.Marshal(r.Assignment)
		if err != nil {
			return roomModel{}, fmt.Errorf("encode assignment: %w", err)
		}
		m.Assignment = datatypes.JSON(data)
	}
	return m, nil
}

func (m roomModel) toRoom() (domain.Room, error) {
	r := domain.Room{
		ID:               m.ID,
		Status:           domain.RoomStatus(m.Status),
		Version:          m.Version,
		CreatorTokenHash: m.CreatorTokenHash,
		CreatedAt:        m.CreatedAt.UTC(),
		MatchedAt:        m.MatchedAt,
	}
	if len(m.Assignment) > 0 && string(m.Assignment) != "null" {
		if err := json.Unmarshal(m.Assignment, &r.Assignment); err != nil {
			return domain.Room{}, fmt.Errorf("decode assignment of room %s: %w", m.ID, err)
		}
	}
	return r, nil
}

func fromParticipant(p domain.Participant) participantModel {
	return participantModel{
		ID:       p.ID,
		RoomID:   p.RoomID,
		Seq:      p.Seq,
		Name:     p.Name,
		Wish:     p.Wish,
		JoinedAt: p.JoinedAt,
	}
}

func (m participantModel) toParticipant() domain.Participant {
	return domain.Participant{
		ID:       m.ID,
		RoomID:   m.RoomID,
		Name:     m.Name,
		Wish:     m.Wish,
		Seq:      m.Seq,
		JoinedAt: m.JoinedAt.UTC(),
	}
}
