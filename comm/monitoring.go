package comm

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation outcomes reported to the monitoring sink. Throttled sends are
// expected behavior and are tagged separately from failures.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeThrottled = "throttled"
)

// Event is one structured monitoring record. Every public operation of the
// communication layer emits exactly one.
type Event struct {
	Component string        `json:"component"`
	Operation string        `json:"operation"`
	Outcome   string        `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	AgentID   string        `json:"agentId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	At        time.Time     `json:"at"`
}

// Sink receives monitoring events. Implementations must not block the
// caller for long; emission happens on the operation's hot path.
type Sink interface {
	Emit(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ZapSink logs each event as a structured record.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("monitoring")}
}

func (s *ZapSink) Emit(ev Event) {
	fields := []zap.Field{
		zap.String("component", ev.Component),
		zap.String("operation", ev.Operation),
		zap.String("outcome", ev.Outcome),
		zap.Duration("duration", ev.Duration),
	}
	if ev.AgentID != "" {
		fields = append(fields, zap.String("agentID", ev.AgentID))
	}
	if ev.SessionID != "" {
		fields = append(fields, zap.String("sessionID", ev.SessionID))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	switch ev.Outcome {
	case OutcomeError:
		s.logger.Warn("operation failed", fields...)
	default:
		s.logger.Debug("operation", fields...)
	}
}

// CollectorSink retains the most recent events in memory. Conformance tests
// and the status endpoint read from it instead of poking internal state.
type CollectorSink struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewCollectorSink creates a sink retaining up to limit events (0 means
// unbounded).
func NewCollectorSink(limit int) *CollectorSink {
	return &CollectorSink{limit: limit}
}

func (s *CollectorSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = s.events[len(s.events)-s.limit:]
	}
}

// Events returns a copy of the retained events in emission order.
func (s *CollectorSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// emit is the shared helper components use to report an operation.
func emit(sink Sink, started time.Time, ev Event) {
	if sink == nil {
		return
	}
	ev.Duration = time.Since(started)
	ev.At = started
	sink.Emit(ev)
}
