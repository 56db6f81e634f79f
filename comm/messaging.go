package comm

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one immutable entry of a session log. Sequence numbers are
// strictly increasing and gapless per session, starting at 1.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"` // empty means session broadcast
	Content   json.RawMessage `json:"content"`
	Type      string          `json:"type,omitempty"`
	Created   time.Time       `json:"created"`
	Sequence  uint64          `json:"sequence"`
	Warning   string          `json:"warning,omitempty"` // soft delivery warning, e.g. recipient no longer registered
}

func (m *Message) clone() *Message {
	out := *m
	if m.Content != nil {
		out.Content = append(json.RawMessage(nil), m.Content...)
	}
	return &out
}

// sessionLog holds the ordered message history of one session. Sequence
// assignment and append happen under the same lock so numbers are never
// reused or skipped, even between concurrent senders.
type sessionLog struct {
	mu       sync.Mutex
	seq      uint64
	messages []*Message
}

// Engine appends and reads messages within sessions, enforcing the rate
// limiter and per-session ordering. Messages are retained for the life of
// the session; the log is volatile like everything else in this layer.
type Engine struct {
	mu       sync.Mutex
	logs     map[string]*sessionLog
	sessions *SessionStore
	registry *Registry
	limiter  *RateLimiter
	clock    Clock
	logger   *zap.Logger
	monitor  Sink
}

func NewEngine(sessions *SessionStore, registry *Registry, limiter *RateLimiter, clock Clock, logger *zap.Logger, monitor Sink) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NopSink{}
	}
	return &Engine{
		logs:     make(map[string]*sessionLog),
		sessions: sessions,
		registry: registry,
		limiter:  limiter,
		clock:    clock,
		logger:   logger.Named("messaging"),
		monitor:  monitor,
	}
}

func (e *Engine) logFor(sessionID string) *sessionLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	log, ok := e.logs[sessionID]
	if !ok {
		log = &sessionLog{}
		e.logs[sessionID] = log
	}
	return log
}

// SendMessage validates, rate-limits and appends one message. The
// allow/deny decision is taken before anything is appended; on success the
// stored message (with id and sequence number) is returned.
func (e *Engine) SendMessage(sessionID, from, to string, content json.RawMessage, msgType string) (*Message, error) {
	started := time.Now()

	session, err := e.sessions.GetSessionInfo(sessionID)
	if err != nil {
		emit(e.monitor, started, Event{Component: "messaging", Operation: "sendMessage", Outcome: OutcomeError, SessionID: sessionID, Detail: err.Error()})
		return nil, err
	}
	if session.Status == SessionEnded {
		err := fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
		emit(e.monitor, started, Event{Component: "messaging", Operation: "sendMessage", Outcome: OutcomeError, SessionID: sessionID, Detail: err.Error()})
		return nil, err
	}
	if !session.HasParticipant(from) {
		err := fmt.Errorf("%w: %s", ErrNotParticipant, from)
		emit(e.monitor, started, Event{Component: "messaging", Operation: "sendMessage", Outcome: OutcomeError, SessionID: sessionID, AgentID: from, Detail: err.Error()})
		return nil, err
	}

	allowed, retryAfter := e.limiter.CheckAndConsume(from)
	if !allowed {
		emit(e.monitor, started, Event{Component: "messaging", Operation: "sendMessage", Outcome: OutcomeThrottled, SessionID: sessionID, AgentID: from})
		return nil, &ThrottledError{AgentID: from, RetryAfter: retryAfter}
	}

	msg := &Message{
		ID:        e.clock.NewID(),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Content:   append(json.RawMessage(nil), content...),
		Type:      msgType,
		Created:   e.clock.Now(),
	}

	// Delivery toward an explicit recipient that left the registry (or was
	// never a participant) degrades to a warning, preserving at-least-once
	// semantics toward the remaining participants.
	if to != "" {
		if !session.HasParticipant(to) {
			msg.Warning = fmt.Sprintf("recipient %s is not a session participant", to)
		} else if _, err := e.registry.GetAgent(to); err != nil {
			msg.Warning = fmt.Sprintf("recipient %s is no longer registered", to)
		}
	}

	log := e.logFor(sessionID)
	log.mu.Lock()
	log.seq++
	msg.Sequence = log.seq
	log.messages = append(log.messages, msg)
	log.mu.Unlock()

	if msg.Warning != "" {
		e.logger.Warn("Message stored with delivery warning",
			zap.String("sessionID", sessionID),
			zap.String("from", from),
			zap.String("to", to),
			zap.String("warning", msg.Warning),
		)
	}
	e.logger.Debug("Message appended",
		zap.String("sessionID", sessionID),
		zap.String("from", from),
		zap.Uint64("sequence", msg.Sequence),
	)
	emit(e.monitor, started, Event{Component: "messaging", Operation: "sendMessage", Outcome: OutcomeSuccess, SessionID: sessionID, AgentID: from})
	return msg.clone(), nil
}

// GetMessageHistory returns the last `limit` messages in ascending
// sequence order. A limit of zero (or less) returns all retained messages.
// Read-only: no rate-limit interaction, works for ended sessions too.
func (e *Engine) GetMessageHistory(sessionID string, limit int) ([]*Message, error) {
	started := time.Now()

	if _, err := e.sessions.GetSessionInfo(sessionID); err != nil {
		emit(e.monitor, started, Event{Component: "messaging", Operation: "getMessageHistory", Outcome: OutcomeError, SessionID: sessionID, Detail: err.Error()})
		return nil, err
	}

	log := e.logFor(sessionID)
	log.mu.Lock()
	start := 0
	if limit > 0 && limit < len(log.messages) {
		start = len(log.messages) - limit
	}
	out := make([]*Message, 0, len(log.messages)-start)
	for _, msg := range log.messages[start:] {
		out = append(out, msg.clone())
	}
	log.mu.Unlock()

	emit(e.monitor, started, Event{Component: "messaging", Operation: "getMessageHistory", Outcome: OutcomeSuccess, SessionID: sessionID})
	return out, nil
}
