package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rfq-realtime/core"
)

func testSession() *Session {
	return newSession("s1", core.User{ID: 1, Name: "alice", Type: core.UserTypeRequester}, "tok")
}

func TestTrackUntrackRoom(t *testing.T) {
	s := testSession()

	s.trackRoom("rfq:1:2")
	assert.True(t, s.InRoom("rfq:1:2"))
	assert.Equal(t, []string{"rfq:1:2"}, s.Rooms())

	assert.True(t, s.untrackRoom("rfq:1:2"))
	assert.False(t, s.InRoom("rfq:1:2"))

	// Second leave, and leaving a room never joined, are no-ops.
	assert.False(t, s.untrackRoom("rfq:1:2"))
	assert.False(t, s.untrackRoom("rfq:9:9"))
}

func TestTypingTimerFires(t *testing.T) {
	s := testSession()
	fired := make(chan struct{}, 1)

	s.resetTyping("rfq:1:2", 20*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("typing expiry did not fire")
	}

	// The fired timer must have been cleared, not left dangling.
	assert.False(t, s.stopTyping("rfq:1:2"))
}

func TestTypingTimerResetOnKeystroke(t *testing.T) {
	s := testSession()
	fired := make(chan struct{}, 2)

	s.resetTyping("rfq:1:2", 40*time.Millisecond, func() { fired <- struct{}{} })
	time.Sleep(20 * time.Millisecond)
	s.resetTyping("rfq:1:2", 40*time.Millisecond, func() { fired <- struct{}{} })
	time.Sleep(30 * time.Millisecond)

	// The first timer was re-armed before expiring; nothing fires yet.
	select {
	case <-fired:
		t.Fatal("timer fired despite reset")
	default:
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("re-armed timer did not fire")
	}
}

func TestStopTypingCancels(t *testing.T) {
	s := testSession()
	fired := make(chan struct{}, 1)

	s.resetTyping("rfq:1:2", 30*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, s.stopTyping("rfq:1:2"))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestStaleTypingTimerLosesToRearm(t *testing.T) {
	s := testSession()

	s.resetTyping("rfq:1:2", time.Hour, func() {})
	s.mu.Lock()
	first := s.typing["rfq:1:2"]
	s.mu.Unlock()

	s.resetTyping("rfq:1:2", time.Hour, func() {})

	// A superseded timer's callback fails the identity check and must not
	// remove the freshly armed timer.
	assert.False(t, s.clearTypingIf("rfq:1:2", first))
	assert.True(t, s.stopTyping("rfq:1:2"))
}

func TestClearTypingIfRemovesCurrentTimer(t *testing.T) {
	s := testSession()

	s.resetTyping("rfq:1:2", time.Hour, func() {})
	s.mu.Lock()
	current := s.typing["rfq:1:2"]
	s.mu.Unlock()

	assert.True(t, s.clearTypingIf("rfq:1:2", current))
	assert.False(t, s.stopTyping("rfq:1:2"))
}

func TestCancelTimersOnDisconnect(t *testing.T) {
	s := testSession()
	fired := make(chan struct{}, 2)

	s.resetTyping("rfq:1:2", 30*time.Millisecond, func() { fired <- struct{}{} })
	s.resetTyping("rfq:3:4", 30*time.Millisecond, func() { fired <- struct{}{} })
	s.cancelTimers()

	select {
	case <-fired:
		t.Fatal("timer survived disconnect teardown")
	case <-time.After(80 * time.Millisecond):
	}
	assert.False(t, s.stopTyping("rfq:1:2"))
	assert.False(t, s.stopTyping("rfq:3:4"))
}
