package comm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthState is the lifecycle state of a registered agent.
type HealthState string

const (
	HealthOnline   HealthState = "online"
	HealthDegraded HealthState = "degraded"
	HealthOffline  HealthState = "offline"
)

func validHealthState(h HealthState) bool {
	switch h {
	case HealthOnline, HealthDegraded, HealthOffline:
		return true
	}
	return false
}

// AgentDescriptor identifies one addressable agent process and what it can
// do. Capability tags are compared by equality during discovery.
type AgentDescriptor struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Health       HealthState            `json:"health"`
	LastSeen     time.Time              `json:"lastSeen"`
}

// clone returns a deep copy so callers never alias registry-internal state.
func (d *AgentDescriptor) clone() *AgentDescriptor {
	out := *d
	if d.Capabilities != nil {
		out.Capabilities = make([]string, len(d.Capabilities))
		copy(out.Capabilities, d.Capabilities)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

const maxAgentIDLength = 128

// Registry holds agent descriptors keyed by id. All mutations are
// linearizable per id: re-registration replaces the descriptor atomically,
// concurrent readers never observe a partial update. The registry is
// volatile by design; nothing survives the process.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*AgentDescriptor
	clock   Clock
	logger  *zap.Logger
	monitor Sink
}

// NewRegistry creates an empty registry.
func NewRegistry(clock Clock, logger *zap.Logger, monitor Sink) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NopSink{}
	}
	return &Registry{
		agents:  make(map[string]*AgentDescriptor),
		clock:   clock,
		logger:  logger.Named("registry"),
		monitor: monitor,
	}
}

// ValidateAgentID checks a caller-supplied agent id.
func ValidateAgentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAgentID)
	}
	if len(id) > maxAgentIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAgentID, maxAgentIDLength)
	}
	if strings.ContainsAny(id, " \t\n\r") {
		return fmt.Errorf("%w: contains whitespace", ErrInvalidAgentID)
	}
	return nil
}

// RegisterAgent upserts a descriptor and returns the agent id. A
// caller-supplied id is validated; an empty id gets a generated one.
func (r *Registry) RegisterAgent(desc *AgentDescriptor) (string, error) {
	started := time.Now()

	stored := desc.clone()
	if stored.ID == "" {
		stored.ID = r.clock.NewID()
	} else if err := ValidateAgentID(stored.ID); err != nil {
		emit(r.monitor, started, Event{Component: "registry", Operation: "registerAgent", Outcome: OutcomeError, Detail: err.Error()})
		return "", err
	}
	if stored.Health == "" {
		stored.Health = HealthOnline
	} else if !validHealthState(stored.Health) {
		err := fmt.Errorf("invalid health state: %q", stored.Health)
		emit(r.monitor, started, Event{Component: "registry", Operation: "registerAgent", Outcome: OutcomeError, Detail: err.Error()})
		return "", err
	}
	stored.LastSeen = r.clock.Now()

	r.mu.Lock()
	_, replaced := r.agents[stored.ID]
	r.agents[stored.ID] = stored
	r.mu.Unlock()

	r.logger.Debug("Registered agent",
		zap.String("agentID", stored.ID),
		zap.String("name", stored.Name),
		zap.Strings("capabilities", stored.Capabilities),
		zap.Bool("replaced", replaced),
	)
	emit(r.monitor, started, Event{Component: "registry", Operation: "registerAgent", Outcome: OutcomeSuccess, AgentID: stored.ID})
	return stored.ID, nil
}

// DeregisterAgent removes an agent. Removing an unknown id is a no-op; the
// returned flag reports whether anything was removed.
func (r *Registry) DeregisterAgent(id string) bool {
	started := time.Now()

	r.mu.Lock()
	_, existed := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("Deregistered agent", zap.String("agentID", id))
	}
	emit(r.monitor, started, Event{Component: "registry", Operation: "deregisterAgent", Outcome: OutcomeSuccess, AgentID: id})
	return existed
}

// GetAgent returns a copy of the descriptor for id.
func (r *Registry) GetAgent(id string) (*AgentDescriptor, error) {
	r.mu.RLock()
	desc, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return desc.clone(), nil
}

// Heartbeat refreshes last-seen and optionally moves the health state.
// An empty health keeps the current state.
func (r *Registry) Heartbeat(id string, health HealthState) error {
	started := time.Now()

	if health != "" && !validHealthState(health) {
		err := fmt.Errorf("invalid health state: %q", health)
		emit(r.monitor, started, Event{Component: "registry", Operation: "heartbeat", Outcome: OutcomeError, AgentID: id, Detail: err.Error()})
		return err
	}

	r.mu.Lock()
	desc, ok := r.agents[id]
	if ok {
		updated := desc.clone()
		updated.LastSeen = r.clock.Now()
		if health != "" {
			updated.Health = health
		}
		r.agents[id] = updated
	}
	r.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrAgentNotFound, id)
		emit(r.monitor, started, Event{Component: "registry", Operation: "heartbeat", Outcome: OutcomeError, AgentID: id, Detail: err.Error()})
		return err
	}
	emit(r.monitor, started, Event{Component: "registry", Operation: "heartbeat", Outcome: OutcomeSuccess, AgentID: id})
	return nil
}

// Snapshot returns copies of all descriptors. Discovery filters over this
// without holding the registry lock.
func (r *Registry) Snapshot() []*AgentDescriptor {
	r.mu.RLock()
	out := make([]*AgentDescriptor, 0, len(r.agents))
	for _, desc := range r.agents {
		out = append(out, desc.clone())
	}
	r.mu.RUnlock()
	return out
}

// Len reports the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
