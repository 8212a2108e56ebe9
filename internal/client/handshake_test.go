package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeWithKnownValues(t *testing.T) {
	h := &Handshake{Name: "alice", Room: "lobby"}

	out, done, err := h.Feed("enter username")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{"alice"}, out)

	out, _, err = h.Feed("enter room")
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby"}, out)

	out, done, err = h.Feed("OK joined lobby as alice")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Nil(t, out)
	assert.True(t, h.Done())

	out, done, _ = h.Feed("bob: hi")
	assert.True(t, done, "lines after the ack are not handshake traffic")
	assert.Nil(t, out)
}

func TestHandshakeWaitsForSubmit(t *testing.T) {
	h := &Handshake{}

	out, _, err := h.Feed("enter username")
	require.NoError(t, err)
	assert.Nil(t, out, "nothing to answer yet")

	assert.Equal(t, []string{"alice"}, h.Submit("alice", "lobby"))

	out, _, _ = h.Feed("enter room")
	assert.Equal(t, []string{"lobby"}, out, "room is answered from the earlier submit")

	assert.Nil(t, h.Submit("", ""), "no prompt pending")
}

func TestHandshakeNameTakenRetry(t *testing.T) {
	h := &Handshake{Name: "alice", Room: "lobby"}

	out, _, _ := h.Feed("enter username")
	require.Equal(t, []string{"alice"}, out)

	_, done, err := h.Feed("ERR name taken: alice")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.False(t, done)
	assert.Empty(t, h.Name)
	assert.Equal(t, "lobby", h.Room)

	out, _, err = h.Feed("enter username")
	require.NoError(t, err)
	assert.Nil(t, out, "the room must not be sent as a username")

	assert.Equal(t, []string{"carol"}, h.Submit("carol", ""))
	out, _, _ = h.Feed("enter room")
	assert.Equal(t, []string{"lobby"}, out)

	_, done, _ = h.Feed("OK joined lobby as carol")
	assert.True(t, done)
	assert.Equal(t, "carol", h.Name)
}

func TestHandshakeRejectedRoom(t *testing.T) {
	h := &Handshake{Name: "dana", Room: "two words"}

	h.Feed("enter username")
	h.Feed("enter room")
	_, _, err := h.Feed("ERR room join failed: invalid room name")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "dana", h.Name)
	assert.Empty(t, h.Room)

	out, _, _ := h.Feed("enter room")
	assert.Nil(t, out)
	assert.Equal(t, []string{"dev"}, h.Submit("", "dev"))
}

func TestHandshakeAnswer(t *testing.T) {
	h := &Handshake{}

	_, ok := h.Answer("early")
	assert.False(t, ok, "no prompt yet")

	h.Feed("enter username")
	out, ok := h.Answer("erin")
	require.True(t, ok)
	assert.Equal(t, []string{"erin"}, out)
	assert.Equal(t, "erin", h.Name)

	_, ok = h.Answer("again")
	assert.False(t, ok, "prompt already answered")

	h.Feed("enter room")
	out, ok = h.Answer("dev")
	require.True(t, ok)
	assert.Equal(t, []string{"dev"}, out)
	assert.Equal(t, "dev", h.Room)
}
