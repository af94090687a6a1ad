package main

import (
	"fmt"
	"io"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/roomview"
)

// renderer prints the differences between consecutive views
type renderer struct {
	w      io.Writer
	seen   map[string]bool
	status roomview.Status
	mode   string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, seen: make(map[string]bool)}
}

func (r *renderer) Render(v roomview.View) {
	if v.Status != r.status {
		r.status = v.Status
		switch v.Status {
		case roomview.StatusLoading:
			fmt.Fprintf(r.w, "connecting to room %s...\n", v.RoomID)
		case roomview.StatusError:
			fmt.Fprintf(r.w, "room %s not found\n", v.RoomID)
		case roomview.StatusCollecting:
			fmt.Fprintf(r.w, "room %s is collecting participants\n", v.RoomID)
		case roomview.StatusMatched:
			fmt.Fprintf(r.w, "room %s has been matched\n", v.RoomID)
		}
	}

	current := make(map[string]bool, len(v.Roster))
	for _, p := range v.Roster {
		current[p.ID] = true
		if !r.seen[p.ID] {
			fmt.Fprintf(r.w, "  + %s%s\n", p.Name, r.meSuffix(v, p))
		}
	}
	for id := range r.seen {
		if !current[id] {
			fmt.Fprintf(r.w, "  - participant %s left\n", id)
		}
	}
	r.seen = current

	if v.Revealed && v.Recipient != nil {
		fmt.Fprintf(r.w, "\n  you give to %s\n  wish: %s\n\n", v.Recipient.Name, v.Recipient.Wish)
	}

	mode := ""
	switch {
	case v.Spectator:
		mode = "you did not join this room; watching as a spectator"
	case v.Unresolved:
		mode = "your recipient could not be resolved yet"
	}
	if mode != r.mode {
		r.mode = mode
		if mode != "" {
			fmt.Fprintln(r.w, mode)
		}
	}
}

func (r *renderer) meSuffix(v roomview.View, p domain.Participant) string {
	if v.Me != nil && v.Me.ID == p.ID {
		return " (you)"
	}
	return ""
}
