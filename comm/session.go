package comm

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStatus is the lifecycle state of a collaboration session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// InteractionMode describes how participants use the session.
type InteractionMode string

const (
	ModeCollaborative InteractionMode = "collaborative"
	ModeBroadcast     InteractionMode = "broadcast"
)

// Session groups a fixed set of agents around an ordered message log. The
// participant set is immutable after creation; sessions hold agent ids,
// not descriptors, and tolerate participants deregistering later.
type Session struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Topic        string          `json:"topic,omitempty"`
	Mode         InteractionMode `json:"mode"`
	Participants []string        `json:"participants"`
	Created      time.Time       `json:"created"`
	Status       SessionStatus   `json:"status"`
}

func (s *Session) clone() *Session {
	out := *s
	out.Participants = make([]string, len(s.Participants))
	copy(out.Participants, s.Participants)
	return &out
}

// HasParticipant reports whether agentID belongs to the session.
func (s *Session) HasParticipant(agentID string) bool {
	for _, p := range s.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// SessionSpec is the input to CreateSession.
type SessionSpec struct {
	Name         string
	Topic        string
	Mode         InteractionMode
	Participants []string
}

// SessionStore owns session lifecycle. Participant ids are validated
// against the registry at creation time only; a participant deregistering
// later does not invalidate the session.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	registry *Registry
	clock    Clock
	logger   *zap.Logger
	monitor  Sink
}

func NewSessionStore(registry *Registry, clock Clock, logger *zap.Logger, monitor Sink) *SessionStore {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NopSink{}
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		registry: registry,
		clock:    clock,
		logger:   logger.Named("sessions"),
		monitor:  monitor,
	}
}

// CreateSession validates the spec against a registry snapshot and stores
// a new active session. The registry lock is not held while the store does
// its own work.
func (s *SessionStore) CreateSession(spec SessionSpec) (*Session, error) {
	started := time.Now()

	if len(spec.Participants) == 0 {
		emit(s.monitor, started, Event{Component: "sessions", Operation: "createSession", Outcome: OutcomeError, Detail: ErrNoParticipants.Error()})
		return nil, ErrNoParticipants
	}
	for _, id := range spec.Participants {
		if _, err := s.registry.GetAgent(id); err != nil {
			wrapped := fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
			emit(s.monitor, started, Event{Component: "sessions", Operation: "createSession", Outcome: OutcomeError, AgentID: id, Detail: wrapped.Error()})
			return nil, wrapped
		}
	}

	mode := spec.Mode
	if mode == "" {
		mode = ModeCollaborative
	}

	session := &Session{
		ID:           s.clock.NewID(),
		Name:         spec.Name,
		Topic:        spec.Topic,
		Mode:         mode,
		Participants: append([]string(nil), spec.Participants...),
		Created:      s.clock.Now(),
		Status:       SessionActive,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Debug("Created session",
		zap.String("sessionID", session.ID),
		zap.String("name", session.Name),
		zap.Strings("participants", session.Participants),
	)
	emit(s.monitor, started, Event{Component: "sessions", Operation: "createSession", Outcome: OutcomeSuccess, SessionID: session.ID})
	return session.clone(), nil
}

// GetSessionInfo returns a copy of the session.
func (s *SessionStore) GetSessionInfo(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session.clone(), nil
}

// EndSession transitions a session to ended. The transition is idempotent:
// ending an already-ended session is not an error.
func (s *SessionStore) EndSession(id string) error {
	started := time.Now()

	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		session.Status = SessionEnded
	}
	s.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		emit(s.monitor, started, Event{Component: "sessions", Operation: "endSession", Outcome: OutcomeError, SessionID: id, Detail: err.Error()})
		return err
	}
	s.logger.Debug("Ended session", zap.String("sessionID", id))
	emit(s.monitor, started, Event{Component: "sessions", Operation: "endSession", Outcome: OutcomeSuccess, SessionID: id})
	return nil
}
