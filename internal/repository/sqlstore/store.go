package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Store implements usecase.Store with gorm. Compare-and-swap is a conditional
// UPDATE whose affected row count decides the winner.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a store over an open, migrated database
func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// CreateRoom inserts a room if its id is free
func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	m, err := fromRoom(room)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&roomModel{}).Where("id = ?", room.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrRoomIDTaken
		}
		return tx.Create(&m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrRoomIDTaken
	}
	return s.wrap("create room", err)
}

// GetRoom returns the stored room
func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	room, err := getRoom(s.db.WithContext(ctx), id)
	return room, s.wrap("get room", err)
}

// CompareAndSwapRoom persists next if the stored room still has the expected status and version
func (s *Store) CompareAndSwapRoom(ctx context.Context, next domain.Room, expected domain.RoomStatus, expectedVersion uint64) error {
	m, err := fromRoom(next)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomModel{}).
			Where("id = ? AND status = ? AND version = ?", next.ID, string(expected), expectedVersion).
			Updates(map[string]interface{}{
				"status":     m.Status,
				"assignment": m.Assignment,
				"version":    m.Version,
				"matched_at": m.MatchedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		current, err := getRoom(tx, next.ID)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return domain.ErrRoomNotCollecting
		}
		return domain.ErrWriteConflict
	})
	return s.wrap("compare and swap room", err)
}

// InsertParticipant appends a participant and bumps the room version in one transaction
func (s *Store) InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomModel{}).
			Where("id = ? AND status = ?", p.RoomID, string(domain.RoomStatusCollecting)).
			Update("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := getRoom(tx, p.RoomID); err != nil {
				return err
			}
			return domain.ErrRoomNotCollecting
		}

		var version uint64
		if err := tx.Model(&roomModel{}).Where("id = ?", p.RoomID).Pluck("version", &version).Error; err != nil {
			return err
		}

		p.ID = uuid.NewString()
		p.Seq = version
		m := fromParticipant(p)
		return tx.Create(&m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Participant{}, domain.ErrWriteConflict
	}
	if err != nil {
		return domain.Participant{}, s.wrap("insert participant", err)
	}
	return p, nil
}

// ListParticipants returns the roster in join order
func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	participants, err := listParticipants(s.db.WithContext(ctx), roomID)
	if err != nil {
		return nil, s.wrap("list participants", err)
	}
	return participants, nil
}

// Snapshot reads the room and its roster in one transaction
func (s *Store) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	var opts *sql.TxOptions
	if s.db.Dialector.Name() == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	var snap domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := getRoom(tx, roomID)
		if err != nil {
			return err
		}
		participants, err := listParticipants(tx, roomID)
		if err != nil {
			return err
		}
		snap = domain.Snapshot{Room: room, Participants: participants}
		return nil
	}, opts)
	if err != nil {
		return domain.Snapshot{}, s.wrap("snapshot", err)
	}
	return snap, nil
}

// wrap keeps domain errors as they are and marks everything else transient
func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.log.Error("sql operation failed", zap.String("op", op), zap.Error(err))
	return domain.Transient(op, err)
}

func getRoom(db *gorm.DB, id string) (domain.Room, error) {
	var m roomModel
	err := db.Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return m.toRoom()
}

func listParticipants(db *gorm.DB, roomID string) ([]domain.Participant, error) {
	var models []participantModel
	if err := db.Where("room_id = ?", roomID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	participants := make([]domain.Participant, 0, len(models))
	for _, m := range models {
		participants = append(participants, m.toParticipant())
	}
	return participants, nil
}
