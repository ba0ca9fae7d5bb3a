// Package session implements the Session Registry & Room Index of
// spec.md §4.9: the per-instance bookkeeping mapping a live connection
// to the user and quiz it belongs to.
//
// The teacher's internal/session/service.go persisted quiz sessions in
// Postgres; there is no durable session store in this design (a
// session is purely the lifetime of one WebSocket connection), so the
// rewrite keeps only the package name and generalizes its
// uuid.NewV7-based ID allocation into a concurrent in-memory registry
// grounded on the Java WebSocketSessionRegistry/QuizRoomManager pair.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the live connections of a single instance: which
// user each session belongs to, and which quiz room each session has
// joined. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	sessionUser map[string]string // sessionID -> userID, latest wins
	sessionQuiz map[string]string // sessionID -> quizID
	quizRooms   map[string]map[string]struct{} // quizID -> set of sessionIDs
}

func NewRegistry() *Registry {
	return &Registry{
		sessionUser: make(map[string]string),
		sessionQuiz: make(map[string]string),
		quizRooms:   make(map[string]map[string]struct{}),
	}
}

// NewSessionID allocates a fresh session identifier for a newly
// accepted connection.
func NewSessionID() string {
	return uuid.NewString()
}

// Associate records which user a session belongs to. A later call for
// the same session overwrites the earlier one (spec.md §4.9: latest
// JOIN wins).
func (r *Registry) Associate(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionUser[sessionID] = userID
}

// User returns the user associated with a session, if any.
func (r *Registry) User(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.sessionUser[sessionID]
	return u, ok
}

// AddToRoom joins a session to a quiz room. If the session was already
// in a different room, it is moved: a session belongs to at most one
// room at a time.
func (r *Registry) AddToRoom(sessionID, quizID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessionQuiz[sessionID]; ok && prev != quizID {
		r.removeFromRoomLocked(sessionID, prev)
	}

	r.sessionQuiz[sessionID] = quizID

	room, ok := r.quizRooms[quizID]
	if !ok {
		room = make(map[string]struct{})
		r.quizRooms[quizID] = room
	}
	room[sessionID] = struct{}{}
}

// Room returns the quiz a session has joined, if any.
func (r *Registry) Room(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.sessionQuiz[sessionID]
	return q, ok
}

// InRoom reports whether sessionID is currently a member of quizID.
func (r *Registry) InRoom(sessionID, quizID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.sessionQuiz[sessionID]
	return ok && q == quizID
}

// Sessions returns the session IDs currently in a quiz room. The
// returned slice is a snapshot; it does not alias internal state.
func (r *Registry) Sessions(quizID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.quizRooms[quizID]
	out := make([]string, 0, len(room))
	for id := range room {
		out = append(out, id)
	}
	return out
}

// Cleanup removes every trace of a session: its user association and
// its room membership. Idempotent and tolerant of a session that was
// only partially registered (e.g. connected but never joined a room).
func (r *Registry) Cleanup(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessionUser, sessionID)

	if quizID, ok := r.sessionQuiz[sessionID]; ok {
		r.removeFromRoomLocked(sessionID, quizID)
	}
	delete(r.sessionQuiz, sessionID)
}

// removeFromRoomLocked must be called with r.mu held.
func (r *Registry) removeFromRoomLocked(sessionID, quizID string) {
	room, ok := r.quizRooms[quizID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.quizRooms, quizID)
	}
}
