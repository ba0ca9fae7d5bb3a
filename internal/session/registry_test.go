package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AssociateAndUser(t *testing.T) {
	r := NewRegistry()

	r.Associate("s1", "alice")
	u, ok := r.User("s1")
	require.True(t, ok)
	assert.Equal(t, "alice", u)

	// latest JOIN wins
	r.Associate("s1", "bob")
	u, ok = r.User("s1")
	require.True(t, ok)
	assert.Equal(t, "bob", u)

	_, ok = r.User("missing")
	assert.False(t, ok)
}

func TestRegistry_AddToRoomMovesSession(t *testing.T) {
	r := NewRegistry()

	r.AddToRoom("s1", "quiz-a")
	assert.True(t, r.InRoom("s1", "quiz-a"))

	r.AddToRoom("s1", "quiz-b")
	assert.False(t, r.InRoom("s1", "quiz-a"))
	assert.True(t, r.InRoom("s1", "quiz-b"))

	assert.ElementsMatch(t, []string{"s1"}, r.Sessions("quiz-b"))
	assert.Empty(t, r.Sessions("quiz-a"))
}

func TestRegistry_Cleanup(t *testing.T) {
	r := NewRegistry()

	r.Associate("s1", "alice")
	r.AddToRoom("s1", "quiz-a")

	r.Cleanup("s1")

	_, ok := r.User("s1")
	assert.False(t, ok)
	_, ok = r.Room("s1")
	assert.False(t, ok)
	assert.Empty(t, r.Sessions("quiz-a"))
}

func TestRegistry_CleanupToleratesPartialState(t *testing.T) {
	r := NewRegistry()

	// a session that connected but never joined a room
	r.Associate("s1", "alice")

	assert.NotPanics(t, func() { r.Cleanup("s1") })
	assert.NotPanics(t, func() { r.Cleanup("never-registered") })
}

func TestRegistry_NewSessionIDUnique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
