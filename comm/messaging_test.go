package comm

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	engine   *Engine
	sessions *SessionStore
	registry *Registry
	clock    *fakeClock
}

func newEngineFixture(t *testing.T, ceiling int, window time.Duration) *engineFixture {
	t.Helper()
	clock := newFakeClock()
	registry := NewRegistry(clock, zap.NewNop(), nil)
	sessions := NewSessionStore(registry, clock, zap.NewNop(), nil)
	limiter := NewRateLimiter(ceiling, window, zap.NewNop())
	engine := NewEngine(sessions, registry, limiter, clock, zap.NewNop(), nil)
	return &engineFixture{engine: engine, sessions: sessions, registry: registry, clock: clock}
}

func (f *engineFixture) newSession(t *testing.T, participants ...string) *Session {
	t.Helper()
	for _, id := range participants {
		_, err := f.registry.RegisterAgent(&AgentDescriptor{ID: id, Name: id})
		require.NoError(t, err)
	}
	session, err := f.sessions.CreateSession(SessionSpec{Name: "test", Participants: participants})
	require.NoError(t, err)
	return session
}

func TestSendMessageAssignsGaplessSequence(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1", "a2")

	for i := 1; i <= 3; i++ {
		msg, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`{"n":1}`), "text")
		require.NoError(t, err)
		assert.Equal(t, uint64(i), msg.Sequence)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, session.ID, msg.SessionID)
	}
}

func TestSendMessageSequencesArePerSession(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	s1 := f.newSession(t, "a1")
	s2 := f.newSession(t, "b1")

	msg, err := f.engine.SendMessage(s1.ID, "a1", "", json.RawMessage(`1`), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence)

	msg, err = f.engine.SendMessage(s2.ID, "b1", "", json.RawMessage(`1`), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence) // independent counter
}

func TestSendMessageUnknownSession(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	_, err := f.engine.SendMessage("ghost", "a1", "", json.RawMessage(`1`), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessageEndedSession(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1")
	require.NoError(t, f.sessions.EndSession(session.ID))

	_, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`1`), "")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestSendMessageNonParticipantSender(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1")

	_, err := f.registry.RegisterAgent(&AgentDescriptor{ID: "outsider", Name: "outsider"})
	require.NoError(t, err)

	_, err = f.engine.SendMessage(session.ID, "outsider", "", json.RawMessage(`1`), "")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendMessageThrottled(t *testing.T) {
	f := newEngineFixture(t, 1, time.Minute)
	session := f.newSession(t, "a1", "a2")

	_, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`1`), "")
	require.NoError(t, err)

	_, err = f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`2`), "")
	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, "a1", throttled.AgentID)
	assert.Greater(t, throttled.RetryAfter, time.Duration(0))

	// Another participant is unaffected.
	_, err = f.engine.SendMessage(session.ID, "a2", "", json.RawMessage(`3`), "")
	require.NoError(t, err)

	// The denied send must not have consumed a sequence number.
	history, err := f.engine.GetMessageHistory(session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[1].Sequence)
}

func TestSendMessageRecipientWarnings(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1", "a2")

	// Addressed delivery to a live participant carries no warning.
	msg, err := f.engine.SendMessage(session.ID, "a1", "a2", json.RawMessage(`1`), "")
	require.NoError(t, err)
	assert.Empty(t, msg.Warning)

	// Recipient outside the session.
	msg, err = f.engine.SendMessage(session.ID, "a1", "stranger", json.RawMessage(`2`), "")
	require.NoError(t, err)
	assert.Contains(t, msg.Warning, "not a session participant")

	// Recipient left the registry but is still a participant.
	f.registry.DeregisterAgent("a2")
	msg, err = f.engine.SendMessage(session.ID, "a1", "a2", json.RawMessage(`3`), "")
	require.NoError(t, err)
	assert.Contains(t, msg.Warning, "no longer registered")
}

func TestGetMessageHistory(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1")

	for i := 0; i < 5; i++ {
		_, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(fmt.Sprintf(`%d`, i)), "")
		require.NoError(t, err)
	}

	// Limit returns the most recent entries in ascending order.
	history, err := f.engine.GetMessageHistory(session.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(4), history[0].Sequence)
	assert.Equal(t, uint64(5), history[1].Sequence)

	// Zero limit returns everything.
	history, err = f.engine.GetMessageHistory(session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 5)

	// A limit beyond the log size is not an error.
	history, err = f.engine.GetMessageHistory(session.ID, 100)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestGetMessageHistoryEmptySession(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1")

	history, err := f.engine.GetMessageHistory(session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetMessageHistoryAfterSessionEnd(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	session := f.newSession(t, "a1")

	_, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`1`), "")
	require.NoError(t, err)
	require.NoError(t, f.sessions.EndSession(session.ID))

	history, err := f.engine.GetMessageHistory(session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGetMessageHistoryUnknownSession(t *testing.T) {
	f := newEngineFixture(t, 100, time.Minute)
	_, err := f.engine.GetMessageHistory("ghost", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessageConcurrentSequences(t *testing.T) {
	f := newEngineFixture(t, 1000, time.Minute)
	session := f.newSession(t, "a1")

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := f.engine.SendMessage(session.ID, "a1", "", json.RawMessage(`1`), "")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	history, err := f.engine.GetMessageHistory(session.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, senders*perSender)
	for i, msg := range history {
		assert.Equal(t, uint64(i+1), msg.Sequence)
	}
}
