package usecase

import (
	"context"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// RoomRepository is the durable record of rooms
type RoomRepository interface {
	// CreateRoom inserts a room if its id is free, otherwise domain.ErrRoomIDTaken
	CreateRoom(ctx context.Context, room domain.Room) error

	// GetRoom returns domain.ErrRoomNotFound for unknown ids
	GetRoom(ctx context.Context, id string) (domain.Room, error)

	// CompareAndSwapRoom persists next only if the stored room still has the expected
	// status and version. A status mismatch is domain.ErrRoomNotCollecting, a version
	// mismatch or store-level write conflict is domain.ErrWriteConflict.
	CompareAndSwapRoom(ctx context.Context, next domain.Room, expected domain.RoomStatus, expectedVersion uint64) error
}

// ParticipantRepository is the append-only roster store
type ParticipantRepository interface {
	// InsertParticipant assigns the id and seq, bumps the room version and stores the
	// participant in one transaction. The room must exist and be collecting.
	InsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)

	// ListParticipants returns the roster in join order
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
}

// SnapshotReader reads a room and its roster consistently
type SnapshotReader interface {
	Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error)
}

// Store is the full persistence collaborator
type Store interface {
	RoomRepository
	ParticipantRepository
	SnapshotReader
}

// Matcher computes an assignment over participant ids
type Matcher interface {
	Match(ids []string) (domain.Assignment, error)
}

// Publisher delivers committed room events to subscribers
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// Recorder receives business metrics
type Recorder interface {
	RoomCreated()
	ParticipantJoined()
	MatchFinished(result string)
	EventPublished(eventType string)
}

type nopRecorder struct{}

func (nopRecorder) RoomCreated()          {}
func (nopRecorder) ParticipantJoined()    {}
func (nopRecorder) MatchFinished(string)  {}
func (nopRecorder) EventPublished(string) {}
