package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Match outcome labels reported to the Recorder
const (
	MatchResultOK        = "ok"
	MatchResultRejected  = "rejected"
	MatchResultConflict  = "conflict"
	MatchResultForbidden = "forbidden"
	MatchResultError     = "error"
)

// RoomService coordinates the room lifecycle: create, join, start matching
// and the read side used by clients.
type RoomService struct {
	store     Store
	matcher   Matcher
	publisher Publisher
	log       *zap.Logger
	metrics   Recorder
	locks     *roomLocks
	now       func() time.Time
}

// NewRoomService creates a room service. publisher and log may be nil.
func NewRoomService(store Store, matcher Matcher, publisher Publisher, log *zap.Logger) *RoomService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomService{
		store:     store,
		matcher:   matcher,
		publisher: publisher,
		log:       log,
		metrics:   nopRecorder{},
		locks:     newRoomLocks(),
		now:       time.Now,
	}
}

// SetMetrics sets the business metrics recorder
func (s *RoomService) SetMetrics(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.metrics = r
}

// CreateRoom creates a collecting room and returns it with its creator token.
// An empty id asks the service to generate one.
func (s *RoomService) CreateRoom(ctx context.Context, id string) (domain.Room, string, error) {
	generated := id == ""
	if !generated {
		if err := domain.ValidateRoomID(id); err != nil {
			return domain.Room{}, "", err
		}
	}

	token, err := GenerateCreatorToken()
	if err != nil {
		return domain.Room{}, "", domain.Transient("generate creator token", err)
	}

	for attempt := 1; ; attempt++ {
		roomID := id
		if generated {
			if roomID, err = GenerateRoomID(); err != nil {
				return domain.Room{}, "", domain.Transient("generate room id", err)
			}
		}

		room := domain.NewRoom(roomID, token)
		err = s.store.CreateRoom(ctx, room)
		if err == nil {
			s.metrics.RoomCreated()
			s.log.Info("room created", zap.String("room_id", room.ID))
			return room, token, nil
		}
		if !generated || !errors.Is(err, domain.ErrRoomIDTaken) || attempt >= domain.CreateAttempts {
			return domain.Room{}, "", err
		}
	}
}

// Join adds a participant to a collecting room and publishes participant_added
func (s *RoomService) Join(ctx context.Context, roomID, name, wish string) (domain.Participant, error) {
	if err := checkRoomRef(roomID); err != nil {
		return domain.Participant{}, err
	}
	p, err := domain.NewParticipant(roomID, name, wish)
	if err != nil {
		return domain.Participant{}, err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	var created domain.Participant
	for attempt := 1; ; attempt++ {
		created, err = s.store.InsertParticipant(ctx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrWriteConflict) || attempt >= domain.JoinAttempts {
			return domain.Participant{}, err
		}
		s.log.Debug("join write conflict, retrying", zap.String("room_id", roomID), zap.Int("attempt", attempt))
	}

	s.metrics.ParticipantJoined()
	s.log.Info("participant joined",
		zap.String("room_id", roomID),
		zap.String("participant_id", created.ID),
		zap.Uint64("seq", created.Seq),
	)
	s.publish(ctx, domain.NewParticipantAdded(created))
	return created, nil
}

// StartMatching computes and commits the room's assignment. Only the holder of
// the creator token may call it, and at most one call per room ever commits.
// When the room is already matched the stored room is returned together with
// an error wrapping domain.ErrRoomNotCollecting.
func (s *RoomService) StartMatching(ctx context.Context, roomID, creatorToken string) (domain.Room, error) {
	if err := checkRoomRef(roomID); err != nil {
		return domain.Room{}, err
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	for attempt := 1; attempt <= domain.MatchAttempts; attempt++ {
		snap, err := s.store.Snapshot(ctx, roomID)
		if err != nil {
			s.metrics.MatchFinished(MatchResultError)
			return domain.Room{}, err
		}
		room := snap.Room

		if !room.IsCreator(creatorToken) {
			s.metrics.MatchFinished(MatchResultForbidden)
			return domain.Room{}, domain.ErrCreatorTokenInvalid
		}
		if room.Status == domain.RoomStatusMatched {
			s.metrics.MatchFinished(MatchResultConflict)
			return room, fmt.Errorf("start matching %s: %w", roomID, domain.ErrRoomNotCollecting)
		}

		ids := snap.ParticipantIDs()
		if len(ids) < domain.MinParticipants {
			s.metrics.MatchFinished(MatchResultRejected)
			return room, domain.ErrNotEnoughParticipants
		}

		assignment, err := s.matcher.Match(ids)
		if err != nil {
			s.metrics.MatchFinished(MatchResultRejected)
			return room, err
		}
		next, err := room.Match(ids, assignment, s.now())
		if err != nil {
			s.metrics.MatchFinished(MatchResultRejected)
			return room, err
		}

		err = s.store.CompareAndSwapRoom(ctx, next, domain.RoomStatusCollecting, room.Version)
		switch {
		case err == nil:
			s.metrics.MatchFinished(MatchResultOK)
			s.log.Info("room matched",
				zap.String("room_id", roomID),
				zap.Int("participants", len(ids)),
				zap.Uint64("version", next.Version),
			)
			s.publish(ctx, domain.NewRoomStatusChanged(next))
			return next, nil
		case errors.Is(err, domain.ErrWriteConflict):
			s.log.Debug("match write conflict, retrying", zap.String("room_id", roomID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, domain.ErrRoomNotCollecting):
			s.metrics.MatchFinished(MatchResultConflict)
			current, gerr := s.store.GetRoom(ctx, roomID)
			if gerr != nil {
				return domain.Room{}, gerr
			}
			return current, fmt.Errorf("start matching %s: %w", roomID, domain.ErrRoomNotCollecting)
		default:
			s.metrics.MatchFinished(MatchResultError)
			return domain.Room{}, err
		}
	}

	s.metrics.MatchFinished(MatchResultConflict)
	current, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	return current, domain.ErrMatchConflict
}

// Snapshot returns the room and its roster as one consistent read
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	if err := checkRoomRef(roomID); err != nil {
		return domain.Snapshot{}, err
	}
	return s.store.Snapshot(ctx, roomID)
}

// GetRoom returns the room record
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	if err := checkRoomRef(roomID); err != nil {
		return domain.Room{}, err
	}
	return s.store.GetRoom(ctx, roomID)
}

// ListParticipants returns the roster in join order
func (s *RoomService) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if err := checkRoomRef(roomID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, roomID)
}

// ResolveRecipient returns the participant that giverID gives to
func (s *RoomService) ResolveRecipient(ctx context.Context, roomID, giverID string) (domain.Participant, error) {
	snap, err := s.Snapshot(ctx, roomID)
	if err != nil {
		return domain.Participant{}, err
	}
	if snap.Room.Status != domain.RoomStatusMatched {
		return domain.Participant{}, domain.ErrRoomNotMatched
	}
	if _, ok := snap.Find(giverID); !ok {
		return domain.Participant{}, domain.ErrAssignmentUnresolved
	}
	recipientID, ok := snap.Room.Assignment.RecipientOf(giverID)
	if !ok {
		return domain.Participant{}, domain.ErrAssignmentUnresolved
	}
	recipient, ok := snap.Find(recipientID)
	if !ok {
		return domain.Participant{}, domain.ErrAssignmentUnresolved
	}
	return recipient, nil
}

// publish delivers an event after its commit. Delivery is best effort: the
// commit stands and subscribers recover through a fresh snapshot.
func (s *RoomService) publish(ctx context.Context, evt domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("publish room event failed",
			zap.String("room_id", evt.RoomID),
			zap.String("type", string(evt.Type)),
			zap.Uint64("seq", evt.Seq),
			zap.Error(err),
		)
		return
	}
	s.metrics.EventPublished(string(evt.Type))
}

// checkRoomRef reports a malformed room reference as not found, since no
// stored room can carry such an id
func checkRoomRef(roomID string) error {
	if domain.ValidateRoomID(roomID) != nil {
		return domain.ErrRoomNotFound
	}
	return nil
}
