package websocket

import (
	"sync"
	"time"

	"rfq-realtime/core"
)

// Session is the live state of one authenticated connection: its resolved
// identity, the rooms it joined, and any pending typing timers. It is created
// after a successful handshake and destroyed on disconnect, at which point
// every membership is released and every timer cancelled.
type Session struct {
	SocketID string
	User     core.User
	Token    string

	mu     sync.Mutex
	rooms  map[string]struct{}
	typing map[string]*time.Timer
}

func newSession(socketID string, user core.User, token string) *Session {
	return &Session{
		SocketID: socketID,
		User:     user,
		Token:    token,
		rooms:    make(map[string]struct{}),
		typing:   make(map[string]*time.Timer),
	}
}

// trackRoom records a joined room. Joining twice is harmless.
func (s *Session) trackRoom(roomID string) {
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
}

// untrackRoom removes a room and reports whether the session was a member.
// Leaving a room never joined is a no-op.
func (s *Session) untrackRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// Rooms returns a snapshot of the joined room identifiers.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// InRoom reports whether the session currently holds a membership for roomID.
func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// resetTyping arms (or re-arms) the per-room typing expiry timer. fire runs
// once if no keystroke or explicit stop arrives within d. A timer that was
// superseded by a re-arm before its callback ran does not fire: the callback
// checks it is still the registered timer for the room.
func (s *Session) resetTyping(roomID string, d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.typing[roomID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		if s.clearTypingIf(roomID, t) {
			fire()
		}
	})
	s.typing[roomID] = t
}

// stopTyping cancels the pending typing timer and reports whether one was
// armed.
func (s *Session) stopTyping(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.typing[roomID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.typing, roomID)
	return true
}

// clearTypingIf removes the room's timer entry only when it still holds t,
// and reports whether it did. A stale timer racing a re-arm loses here.
func (s *Session) clearTypingIf(roomID string, t *time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.typing[roomID]; !ok || cur != t {
		return false
	}
	delete(s.typing, roomID)
	return true
}

// cancelTimers stops every pending timer. Called on disconnect so nothing
// leaks past the session.
func (s *Session) cancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, t := range s.typing {
		t.Stop()
		delete(s.typing, roomID)
	}
}
