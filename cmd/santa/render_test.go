package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmuslimabdulj/secret-santa/internal/domain"
	"github.com/mmuslimabdulj/secret-santa/internal/roomview"
)

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	alice := domain.Participant{ID: "a", Name: "Alice", Wish: "book", Seq: 1}
	bob := domain.Participant{ID: "b", Name: "Bob", Wish: "tea", Seq: 2}

	r.Render(roomview.Loading("room-0001", "a"))
	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusCollecting, Roster: []domain.Participant{alice}, Me: &alice})
	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusCollecting, Roster: []domain.Participant{alice, bob}, Me: &alice})
	r.Render(roomview.View{
		RoomID:    "room-0001",
		Status:    roomview.StatusMatched,
		Roster:    []domain.Participant{alice, bob},
		Me:        &alice,
		Recipient: &bob,
		Revealed:  true,
	})
	// same view again prints nothing new
	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusMatched, Roster: []domain.Participant{alice, bob}, Me: &alice, Recipient: &bob})

	out := buf.String()
	assert.Contains(t, out, "connecting to room room-0001")
	assert.Contains(t, out, "+ Alice (you)")
	assert.Contains(t, out, "+ Bob\n")
	assert.Contains(t, out, "room room-0001 has been matched")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("you give to Bob")))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("+ Bob")))
}

func TestRenderer_SpectatorAndRemoval(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	alice := domain.Participant{ID: "a", Name: "Alice", Seq: 1}
	bob := domain.Participant{ID: "b", Name: "Bob", Seq: 2}

	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusCollecting, Roster: []domain.Participant{alice, bob}})
	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusCollecting, Roster: []domain.Participant{alice}})
	r.Render(roomview.View{RoomID: "room-0001", Status: roomview.StatusMatched, Roster: []domain.Participant{alice}, Spectator: true})

	out := buf.String()
	assert.Contains(t, out, "participant b left")
	assert.Contains(t, out, "spectator")
}
