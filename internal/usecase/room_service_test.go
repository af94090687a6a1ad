package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/repository/badgerstore"
	"github.com/mmuslimabdulj/secret-santa/internal/usecase"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func (p *recordingPublisher) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type countingRecorder struct {
	mu        sync.Mutex
	created   int
	joined    int
	matches   map[string]int
	published map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{matches: map[string]int{}, published: map[string]int{}}
}

func (r *countingRecorder) RoomCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) ParticipantJoined() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined++
}

func (r *countingRecorder) MatchFinished(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[result]++
}

func (r *countingRecorder) EventPublished(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[eventType]++
}

type fixture struct {
	store     *badgerstore.Store
	svc       *usecase.RoomService
	publisher *recordingPublisher
	metrics   *countingRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	db, err := badgerstore.Open(badgerstore.Options{InMemory: true}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	matcher, err := usecase.NewRingMatcher()
	require.NoError(t, err)

	pub := &recordingPublisher{}
	rec := newCountingRecorder()
	store := badgerstore.New(db, log)
	svc := usecase.NewRoomService(store, matcher, pub, log)
	svc.SetMetrics(rec)
	return fixture{store: store, svc: svc, publisher: pub, metrics: rec}
}

func (f fixture) room(t *testing.T, names ...string) (domain.Room, string, []domain.Participant) {
	t.Helper()
	ctx := context.Background()
	room, token, err := f.svc.CreateRoom(ctx, "")
	require.NoError(t, err)

	var joined []domain.Participant
	for _, n := range names {
		p, err := f.svc.Join(ctx, room.ID, n, n+"'s wish")
		require.NoError(t, err)
		joined = append(joined, p)
	}
	return room, token, joined
}

func TestRoomService_CreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, token, err := f.svc.CreateRoom(ctx, "")
	require.NoError(t, err)
	assert.NoError(t, domain.ValidateRoomID(room.ID))
	assert.Equal(t, domain.RoomStatusCollecting, room.Status)
	assert.NotEmpty(t, token)
	assert.True(t, room.IsCreator(token))

	t.Run("explicit id", func(t *testing.T) {
		room, _, err := f.svc.CreateRoom(ctx, "office-party-2026")
		require.NoError(t, err)
		assert.Equal(t, "office-party-2026", room.ID)

		_, _, err = f.svc.CreateRoom(ctx, "office-party-2026")
		assert.ErrorIs(t, err, domain.ErrRoomIDTaken)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, _, err := f.svc.CreateRoom(ctx, "Bad Id!")
		assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
	})

	assert.Equal(t, 2, f.metrics.created)
}

func TestRoomService_Join(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, _ := f.room(t)

	p, err := f.svc.Join(ctx, room.ID, "  Alice  ", "  socks ")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "socks", p.Wish)
	assert.Equal(t, uint64(1), p.Seq)

	events := f.publisher.OfType(domain.EventParticipantAdded)
	require.Len(t, events, 1)
	assert.Equal(t, room.ID, events[0].RoomID)
	assert.Equal(t, p.Seq, events[0].Seq)
	got, err := events[0].Participant()
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestRoomService_Join_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, _ := f.room(t)

	tests := []struct {
		name   string
		roomID string
		pname  string
		wish   string
		want   error
	}{
		{"empty name", room.ID, "   ", "socks", domain.ErrNameRequired},
		{"empty wish", room.ID, "Alice", "", domain.ErrWishRequired},
		{"unknown room", "no-such-room", "Alice", "socks", domain.ErrRoomNotFound},
		{"malformed room id", "X", "Alice", "socks", domain.ErrRoomNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Join(ctx, tt.roomID, tt.pname, tt.wish)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	participants, err := f.svc.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, participants)
	assert.Empty(t, f.publisher.Events())
}

func TestRoomService_Join_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, _ := f.room(t)

	const joiners = 20
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Join(ctx, room.ID, fmt.Sprintf("guest-%02d", i), "anything")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	participants, err := f.svc.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, participants, joiners)
	for i, p := range participants {
		assert.Equal(t, uint64(i+1), p.Seq)
	}

	// events leave in commit order
	events := f.publisher.OfType(domain.EventParticipantAdded)
	require.Len(t, events, joiners)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestRoomService_StartMatching_ThreeParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, joined := f.room(t, "A", "B", "C")

	matched, err := f.svc.StartMatching(ctx, room.ID, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusMatched, matched.Status)
	assert.NotNil(t, matched.MatchedAt)

	ids := []string{joined[0].ID, joined[1].ID, joined[2].ID}
	assert.NoError(t, domain.ValidateAssignment(ids, matched.Assignment))

	events := f.publisher.OfType(domain.EventRoomStatusChanged)
	require.Len(t, events, 1)
	payload, err := events[0].RoomStatus()
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusMatched, payload.Status)
	assert.Equal(t, matched.Assignment, payload.Assignment)
	assert.Equal(t, matched.Version, events[0].Seq)

	for _, p := range joined {
		recipient, err := f.svc.ResolveRecipient(ctx, room.ID, p.ID)
		require.NoError(t, err)
		assert.NotEqual(t, p.ID, recipient.ID)
		assert.Equal(t, matched.Assignment[p.ID], recipient.ID)
	}
	assert.Equal(t, 1, f.metrics.matches[usecase.MatchResultOK])
}

func TestRoomService_StartMatching_TwoParticipants(t *testing.T) {
	f := newFixture(t)
	room, token, joined := f.room(t, "A", "B")

	matched, err := f.svc.StartMatching(context.Background(), room.ID, token)
	require.NoError(t, err)
	assert.Equal(t, joined[1].ID, matched.Assignment[joined[0].ID])
	assert.Equal(t, joined[0].ID, matched.Assignment[joined[1].ID])
}

func TestRoomService_StartMatching_NotEnoughParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, _ := f.room(t, "Solo")

	_, err := f.svc.StartMatching(ctx, room.ID, token)
	assert.ErrorIs(t, err, domain.ErrNotEnoughParticipants)

	current, err := f.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCollecting, current.Status)
	assert.Nil(t, current.Assignment)
	assert.Empty(t, f.publisher.OfType(domain.EventRoomStatusChanged))

	// room still accepts joins and can be matched later
	_, err = f.svc.Join(ctx, room.ID, "Second", "tea")
	require.NoError(t, err)
	_, err = f.svc.StartMatching(ctx, room.ID, token)
	assert.NoError(t, err)
}

func TestRoomService_StartMatching_Forbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, _ := f.room(t, "A", "B")

	for _, token := range []string{"", "not-the-token"} {
		_, err := f.svc.StartMatching(ctx, room.ID, token)
		assert.ErrorIs(t, err, domain.ErrCreatorTokenInvalid)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	}

	current, err := f.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCollecting, current.Status)
}

func TestRoomService_StartMatching_AlreadyMatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, _ := f.room(t, "A", "B", "C")

	first, err := f.svc.StartMatching(ctx, room.ID, token)
	require.NoError(t, err)

	again, err := f.svc.StartMatching(ctx, room.ID, token)
	assert.ErrorIs(t, err, domain.ErrRoomNotCollecting)
	assert.Equal(t, first.Assignment, again.Assignment)
	assert.Len(t, f.publisher.OfType(domain.EventRoomStatusChanged), 1)

	_, err = f.svc.Join(ctx, room.ID, "Late", "anything")
	assert.ErrorIs(t, err, domain.ErrRoomNotCollecting)
}

func TestRoomService_StartMatching_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, _ := f.room(t, "A", "B", "C", "D", "E")

	const callers = 10
	type result struct {
		room domain.Room
		err  error
	}
	results := make(chan result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.svc.StartMatching(ctx, room.ID, token)
			results <- result{r, err}
		}()
	}
	wg.Wait()
	close(results)

	var (
		successes   int
		assignments []domain.Assignment
	)
	for r := range results {
		switch {
		case r.err == nil:
			successes++
		case errors.Is(r.err, domain.ErrRoomNotCollecting):
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
		assignments = append(assignments, r.room.Assignment)
	}

	assert.Equal(t, 1, successes)
	for _, a := range assignments[1:] {
		assert.Equal(t, assignments[0], a, "every caller must observe the committed assignment")
	}
	assert.Len(t, f.publisher.OfType(domain.EventRoomStatusChanged), 1)
}

func TestRoomService_ResolveRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, joined := f.room(t, "A", "B", "C")

	_, err := f.svc.ResolveRecipient(ctx, room.ID, joined[0].ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotMatched)

	_, err = f.svc.StartMatching(ctx, room.ID, token)
	require.NoError(t, err)

	_, err = f.svc.ResolveRecipient(ctx, room.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrUnresolvedAssignment)

	_, err = f.svc.ResolveRecipient(ctx, "no-such-room", joined[0].ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomService_ResolveRecipient_DanglingAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, joined := f.room(t, "A", "B")
	a, b := joined[0], joined[1]

	current, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	next := current
	next.Status = domain.RoomStatusMatched
	next.Assignment = domain.Assignment{a.ID: "gone", "gone": b.ID, b.ID: a.ID}
	next.Version++
	require.NoError(t, f.store.CompareAndSwapRoom(ctx, next, domain.RoomStatusCollecting, current.Version))

	_, err = f.svc.ResolveRecipient(ctx, room.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrUnresolvedAssignment)
	assert.Equal(t, domain.CodeAssignmentUnresolved, domain.CodeOf(err))

	recipient, err := f.svc.ResolveRecipient(ctx, room.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, recipient.ID)
}

func TestRoomService_MalformedRoomIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"abc", "Room-ABCDEFGH", ""} {
		_, err := f.svc.Snapshot(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, id)

		_, err = f.svc.GetRoom(ctx, id)
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, id)

		_, err = f.svc.ListParticipants(ctx, id)
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, id)

		_, err = f.svc.StartMatching(ctx, id, "token")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, id)

		_, err = f.svc.ResolveRecipient(ctx, id, "someone")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound, id)
	}

	// a caller-chosen id on create is still a validation error
	_, _, err := f.svc.CreateRoom(ctx, "Room-ABCDEFGH")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
}

// gatedStore holds every snapshot until two callers have read, then lets
// their compare-and-swaps run one at a time
type gatedStore struct {
	usecase.Store

	mu        sync.Mutex
	snapshots int
	ready     chan struct{}
	casMu     sync.Mutex
}

func newGatedStore(inner usecase.Store) *gatedStore {
	return &gatedStore{Store: inner, ready: make(chan struct{})}
}

func (g *gatedStore) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	snap, err := g.Store.Snapshot(ctx, roomID)

	g.mu.Lock()
	g.snapshots++
	if g.snapshots == 2 {
		close(g.ready)
	}
	g.mu.Unlock()

	<-g.ready
	return snap, err
}

func (g *gatedStore) CompareAndSwapRoom(ctx context.Context, next domain.Room, expected domain.RoomStatus, expectedVersion uint64) error {
	g.casMu.Lock()
	defer g.casMu.Unlock()
	return g.Store.CompareAndSwapRoom(ctx, next, expected, expectedVersion)
}

func (g *gatedStore) snapshotCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshots
}

func TestRoomService_StartMatching_TwoInstancesLoserRereads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, token, _ := f.room(t, "A", "B", "C")

	gated := newGatedStore(f.store)
	log := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	type instance struct {
		svc     *usecase.RoomService
		metrics *countingRecorder
	}
	instances := make([]instance, 2)
	for i := range instances {
		matcher, err := usecase.NewRingMatcher()
		require.NoError(t, err)
		svc := usecase.NewRoomService(gated, matcher, &recordingPublisher{}, log)
		rec := newCountingRecorder()
		svc.SetMetrics(rec)
		instances[i] = instance{svc: svc, metrics: rec}
	}

	type result struct {
		room domain.Room
		err  error
		rec  *countingRecorder
	}
	results := make(chan result, len(instances))
	var wg sync.WaitGroup
	for _, in := range instances {
		wg.Add(1)
		go func(in instance) {
			defer wg.Done()
			r, err := in.svc.StartMatching(ctx, room.ID, token)
			results <- result{room: r, err: err, rec: in.metrics}
		}(in)
	}
	wg.Wait()
	close(results)

	var winner, loser *result
	for r := range results {
		r := r
		switch {
		case r.err == nil:
			winner = &r
		case errors.Is(r.err, domain.ErrRoomNotCollecting):
			loser = &r
		default:
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	require.NotNil(t, winner)
	require.NotNil(t, loser)

	// the loser computed its own ring, lost the swap and re-read the winner's
	assert.Equal(t, 2, gated.snapshotCount())
	assert.Equal(t, domain.RoomStatusMatched, loser.room.Status)
	assert.Equal(t, winner.room.Assignment, loser.room.Assignment)
	assert.Equal(t, 1, loser.rec.matches[usecase.MatchResultConflict])
	assert.Equal(t, 1, winner.rec.matches[usecase.MatchResultOK])

	stored, err := f.store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.room.Assignment, stored.Assignment)
}

func TestRoomService_PublishFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, _ := f.room(t)
	f.publisher.err = errors.New("broker down")

	p, err := f.svc.Join(ctx, room.ID, "Alice", "socks")
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(ctx, room.ID)
	require.NoError(t, err)
	_, ok := snap.Find(p.ID)
	assert.True(t, ok)
	assert.Zero(t, f.metrics.published[string(domain.EventParticipantAdded)])
}
