package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Store implements usecase.Store on Badger
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

// New creates a store over an open database. The caller owns db.
func New(db *badger.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// roomRecord is the persisted form of a room. Unlike domain.Room it keeps the
// creator token digest.
type roomRecord struct {
	ID               string            `json:"id"`
	Status           domain.RoomStatus `json:"status"`
	Assignment       map[string]string `json:"assignment,omitempty"`
	Version          uint64            `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	MatchedAt        *time.Time        `json:"matched_at,omitempty"`
	CreatorTokenHash string            `json:"creator_token_hash"`
}

func fromRoom(r domain.Room) roomRecord {
	return roomRecord{
		ID:               r.ID,
		Status:           r.Status,
		Assignment:       r.Assignment,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		MatchedAt:        r.MatchedAt,
		CreatorTokenHash: r.CreatorTokenHash,
	}
}

func (rec roomRecord) toRoom() domain.Room {
	return domain.Room{
		ID:               rec.ID,
		Status:           rec.Status,
		Assignment:       rec.Assignment,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		MatchedAt:        rec.MatchedAt,
		CreatorTokenHash: rec.CreatorTokenHash,
	}
}

func roomKey(id string) []byte {
	return []byte("room:" + id)
}

func participantPrefix(roomID string) []byte {
	return []byte("participant:" + roomID + ":")
}

// participantKey is formatted as "participant:{room_id}:{seq_padded}:{uuid}"
func participantKey(p domain.Participant) []byte {
	return []byte(fmt.Sprintf("participant:%s:%019d:%s", p.RoomID, p.Seq, p.ID))
}

// CreateRoom inserts a room if its id is free
func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(roomKey(room.ID))
		switch {
		case err == nil:
			return domain.ErrRoomIDTaken
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return setJSON(txn, roomKey(room.ID), fromRoom(room))
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrRoomIDTaken
	}
	return s.wrap("create room", err)
}

// GetRoom returns the stored room
func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, id)
		return err
	})
	return room, s.wrap("get room", err)
}

// CompareAndSwapRoom persists next if the stored room still has the expected status and version
func (s *Store) CompareAndSwapRoom(ctx context.Context, next domain.Room, expected domain.RoomStatus, expectedVersion uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := getRoom(txn, next.ID)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return domain.ErrRoomNotCollecting
		}
		if current.Version != expectedVersion {
			return domain.ErrWriteConflict
		}
		return setJSON(txn, roomKey(next.ID), fromRoom(next))
	})
	return s.wrap("compare and swap room", err)
}

// InsertParticipant appends a participant and bumps the room version in one transaction
func (s *Store) InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		room, err := getRoom(txn, p.RoomID)
		if err != nil {
			return err
		}
		if !room.CanJoin() {
			return domain.ErrRoomNotCollecting
		}

		room.Version++
		p.ID = uuid.NewString()
		p.Seq = room.Version

		if err := setJSON(txn, participantKey(p), p); err != nil {
			return err
		}
		return setJSON(txn, roomKey(room.ID), fromRoom(room))
	})
	if err != nil {
		return domain.Participant{}, s.wrap("insert participant", err)
	}
	return p, nil
}

// ListParticipants returns the roster in join order
func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var participants []domain.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		participants, err = listParticipants(txn, roomID)
		return err
	})
	if err != nil {
		return nil, s.wrap("list participants", err)
	}
	return participants, nil
}

// Snapshot reads the room and its roster in one read transaction
func (s *Store) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		room, err := getRoom(txn, roomID)
		if err != nil {
			return err
		}
		participants, err := listParticipants(txn, roomID)
		if err != nil {
			return err
		}
		snap = domain.Snapshot{Room: room, Participants: participants}
		return nil
	})
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
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrWriteConflict
	}
	if domain.KindOf(err) != nil {
		return err
	}
	s.log.Error("badger operation failed", zap.String("op", op), zap.Error(err))
	return domain.Transient(op, err)
}

func getRoom(txn *badger.Txn, id string) (domain.Room, error) {
	item, err := txn.Get(roomKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var rec roomRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	return rec.toRoom(), nil
}

func listParticipants(txn *badger.Txn, roomID string) ([]domain.Participant, error) {
	prefix := participantPrefix(roomID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	participants := make([]domain.Participant, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var p domain.Participant
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
		if err != nil {
			return nil, fmt.Errorf("decode participant %s: %w", it.Item().Key(), err)
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
