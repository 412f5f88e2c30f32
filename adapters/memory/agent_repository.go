// Package memory holds in-process implementations of the domain repositories.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

// AgentRepository is an in-memory agent store keyed by widget id. It backs
// local runs and tests.
type AgentRepository struct {
	mu       sync.RWMutex
	byWidget map[string]*entities.Agent
}

var _ repositories.AgentRepository = (*AgentRepository)(nil)

// NewAgentRepository creates a repository seeded with agents.
func NewAgentRepository(agents ...*entities.Agent) (*AgentRepository, error) {
	r := &AgentRepository{byWidget: make(map[string]*entities.Agent)}
	for _, a := range agents {
		if err := r.Save(context.Background(), a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Save stores a copy of agent, replacing any agent with the same widget id.
func (r *AgentRepository) Save(_ context.Context, agent *entities.Agent) error {
	if agent == nil {
		return errors.New("agent cannot be nil")
	}
	if err := agent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agentCopy := *agent
	r.byWidget[agent.WidgetID] = &agentCopy
	return nil
}

// FindPublishedByWidgetID implements repositories.AgentRepository
func (r *AgentRepository) FindPublishedByWidgetID(_ context.Context, widgetID string) (*entities.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.byWidget[widgetID]
	if !ok || !agent.Published {
		return nil, repositories.ErrAgentNotFound
	}

	// Return a copy to prevent external modifications
	agentCopy := *agent
	return &agentCopy, nil
}

// Delete removes the agent bound to widgetID.
func (r *AgentRepository) Delete(_ context.Context, widgetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byWidget, widgetID)
}
