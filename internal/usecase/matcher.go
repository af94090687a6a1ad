package usecase

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// RingMatcher builds single-cycle derangements: an unbiased shuffle of the ids,
// then every id gives to its successor in the shuffled ring.
type RingMatcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRingMatcher creates a matcher seeded from crypto/rand
func NewRingMatcher() (*RingMatcher, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("read matcher seed: %w", err)
	}
	return NewRingMatcherWithSource(rand.NewChaCha8(seed)), nil
}

// NewRingMatcherWithSource creates a matcher over an explicit source, for reproducible tests
func NewRingMatcherWithSource(src rand.Source) *RingMatcher {
	return &RingMatcher{rng: rand.New(src)}
}

// Match returns giver → recipient for the given ids. The result is random;
// two calls with the same input are both valid, not necessarily equal.
func (m *RingMatcher) Match(ids []string) (domain.Assignment, error) {
	if len(ids) < domain.MinParticipants {
		return nil, domain.ErrNotEnoughParticipants
	}
	if lo.Contains(ids, "") {
		return nil, domain.ErrInvalidAssignment
	}
	if len(lo.FindDuplicates(ids)) > 0 {
		return nil, domain.ErrDuplicateParticipant
	}

	shuffled := slices.Clone(ids)
	m.shuffle(shuffled)

	n := len(shuffled)
	assignment := make(domain.Assignment, n)
	for i, giver := range shuffled {
		assignment[giver] = shuffled[(i+1)%n]
	}
	return assignment, nil
}

// shuffle is Fisher–Yates from the last index down to 1
func (m *RingMatcher) shuffle(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(ids) - 1; i > 0; i-- {
		j := m.rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}
