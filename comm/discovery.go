package comm

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Filter selects agents during discovery. Capability tags use AND
// semantics: an agent matches only if its capability set contains every
// requested tag. An empty Health matches any state.
type Filter struct {
	Capabilities []string    `json:"capabilities,omitempty"`
	Health       HealthState `json:"health,omitempty"`
}

// Discovery answers read-only capability queries over the registry's
// current snapshot. It never blocks registry mutations.
type Discovery struct {
	registry *Registry
	logger   *zap.Logger
	monitor  Sink
}

func NewDiscovery(registry *Registry, logger *zap.Logger, monitor Sink) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NopSink{}
	}
	return &Discovery{registry: registry, logger: logger.Named("discovery"), monitor: monitor}
}

// DiscoverAgents returns matching descriptors ordered by last-seen
// descending, most recently active first. Ties are broken by id so the
// ordering is deterministic.
func (d *Discovery) DiscoverAgents(filter Filter) []*AgentDescriptor {
	started := time.Now()

	snapshot := d.registry.Snapshot()
	matched := make([]*AgentDescriptor, 0, len(snapshot))
	for _, desc := range snapshot {
		if filter.Health != "" && desc.Health != filter.Health {
			continue
		}
		if !hasAllCapabilities(desc.Capabilities, filter.Capabilities) {
			continue
		}
		matched = append(matched, desc)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastSeen.Equal(matched[j].LastSeen) {
			return matched[i].LastSeen.After(matched[j].LastSeen)
		}
		return matched[i].ID < matched[j].ID
	})

	d.logger.Debug("Discovery query",
		zap.Strings("capabilities", filter.Capabilities),
		zap.String("health", string(filter.Health)),
		zap.Int("matched", len(matched)),
	)
	emit(d.monitor, started, Event{Component: "discovery", Operation: "discoverAgents", Outcome: OutcomeSuccess})
	return matched
}

func hasAllCapabilities(have, want []string) bool {
	for _, tag := range want {
		found := false
		for _, cap := range have {
			if cap == tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
