package domain

// Assignment maps a giver participant id to a recipient participant id
type Assignment map[string]string

// RecipientOf returns the recipient id for a giver
func (a Assignment) RecipientOf(giverID string) (string, bool) {
	if a == nil {
		return "", false
	}
	id, ok := a[giverID]
	return id, ok
}

// Clone returns an independent copy
func (a Assignment) Clone() Assignment {
	if a == nil {
		return nil
	}
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ValidateAssignment checks that a is a single-cycle permutation of ids with no fixed point:
// every id gives exactly once, and walking the ring from any id returns to it after exactly len(ids) steps.
func ValidateAssignment(ids []string, a Assignment) error {
	n := len(ids)
	if n < MinParticipants {
		return ErrNotEnoughParticipants
	}
	if len(a) != n {
		return ErrInvalidAssignment
	}

	members := make(map[string]struct{}, n)
	for _, id := range ids {
		if id == "" {
			return ErrInvalidAssignment
		}
		if _, dup := members[id]; dup {
			return ErrDuplicateParticipant
		}
		members[id] = struct{}{}
	}

	received := make(map[string]struct{}, n)
	for giver, recipient := range a {
		if _, ok := members[giver]; !ok {
			return ErrInvalidAssignment
		}
		if _, ok := members[recipient]; !ok || giver == recipient {
			return ErrInvalidAssignment
		}
		if _, twice := received[recipient]; twice {
			return ErrInvalidAssignment
		}
		received[recipient] = struct{}{}
	}

	start := ids[0]
	cur := start
	for step := 1; step <= n; step++ {
		cur = a[cur]
		if cur == start && step < n {
			return ErrInvalidAssignment
		}
	}
	if cur != start {
		return ErrInvalidAssignment
	}
	return nil
}
