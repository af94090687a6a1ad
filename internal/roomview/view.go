// Package roomview folds a room snapshot and the room's live events into
// what one client sees. It is pure: no I/O, no shared state.
package roomview

import (
	"cmp"
	"errors"
	"slices"

	"github.com/samber/lo"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
)

// Status is the client-facing room status
type Status string

const (
	StatusLoading    Status = "loading"
	StatusError      Status = "error"
	StatusCollecting Status = "collecting"
	StatusMatched    Status = "matched"
)

// View is one client's projection of a room
type View struct {
	RoomID     string
	Status     Status
	Roster     []domain.Participant
	Assignment domain.Assignment

	// MeID is the participant id cached on this device, if any
	MeID string
	Me   *domain.Participant

	Recipient *domain.Participant
	// Revealed is set only by the reduction that first resolves Recipient
	Revealed   bool
	Spectator  bool
	Unresolved bool

	Err error
}

// Loading is the view before any snapshot arrived
func Loading(roomID, meID string) View {
	return View{RoomID: roomID, Status: StatusLoading, MeID: meID}
}

// Failed is the view when the snapshot could not be loaded. Only a missing
// room is terminal; other failures keep the view loading so it can retry.
func Failed(v View, err error) View {
	next := v
	next.Err = err
	if errors.Is(err, domain.ErrNotFound) {
		next.Status = StatusError
	}
	return next
}

// Mount builds the view from an authoritative snapshot
func Mount(snap domain.Snapshot, meID string) View {
	next := View{
		RoomID: snap.Room.ID,
		Status: fromRoomStatus(snap.Room.Status),
		Roster: normalize(snap.Participants),
		MeID:   meID,
	}
	if snap.Room.Status == domain.RoomStatusMatched {
		next.Assignment = snap.Room.Assignment.Clone()
	}
	return derive(next, false)
}

// Reduce applies one event. Events for other rooms, and events that arrive
// before the view is mounted, leave the view unchanged apart from the
// one-shot reveal flag.
func Reduce(v View, evt domain.Event) View {
	next := v
	next.Revealed = false
	if evt.RoomID != v.RoomID || v.Status == StatusLoading || v.Status == StatusError {
		return next
	}

	switch evt.Type {
	case domain.EventParticipantAdded:
		p, err := evt.Participant()
		if err != nil {
			return next
		}
		next.Roster = normalize(append(slices.Clone(v.Roster), p))

	case domain.EventParticipantRemoved:
		id, err := evt.RemovedParticipantID()
		if err != nil {
			return next
		}
		next.Roster = lo.Reject(v.Roster, func(p domain.Participant, _ int) bool {
			return p.ID == id
		})

	case domain.EventRoomStatusChanged:
		payload, err := evt.RoomStatus()
		if err != nil {
			return next
		}
		// matched never reverts
		if next.Status == StatusMatched {
			break
		}
		next.Status = fromRoomStatus(payload.Status)
		if payload.Status == domain.RoomStatusMatched && next.Assignment == nil {
			next.Assignment = payload.Assignment.Clone()
		}

	default:
		return next
	}

	return derive(next, v.Recipient != nil)
}

// derive recomputes Me and the matched-state outcome from the roster
func derive(v View, wasResolved bool) View {
	v.Me = nil
	v.Recipient = nil
	v.Spectator = false
	v.Unresolved = false

	if v.MeID != "" {
		if me, ok := lo.Find(v.Roster, func(p domain.Participant) bool { return p.ID == v.MeID }); ok {
			v.Me = &me
		}
	}

	if v.Status != StatusMatched {
		return v
	}

	if v.Me == nil {
		v.Spectator = true
		return v
	}

	recipientID, ok := v.Assignment.RecipientOf(v.Me.ID)
	if !ok {
		v.Unresolved = true
		return v
	}
	recipient, ok := lo.Find(v.Roster, func(p domain.Participant) bool { return p.ID == recipientID })
	if !ok {
		v.Unresolved = true
		return v
	}

	v.Recipient = &recipient
	v.Revealed = !wasResolved
	return v
}

// normalize dedupes the roster by id, first occurrence wins, and orders it
// by seq then id
func normalize(roster []domain.Participant) []domain.Participant {
	out := lo.UniqBy(roster, func(p domain.Participant) string { return p.ID })
	slices.SortStableFunc(out, func(a, b domain.Participant) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func fromRoomStatus(s domain.RoomStatus) Status {
	if s == domain.RoomStatusMatched {
		return StatusMatched
	}
	return StatusCollecting
}
