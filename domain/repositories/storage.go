package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/suara/domain/entities"
)

// ErrAgentNotFound is returned when no published agent matches a lookup.
var ErrAgentNotFound = errors.New("published agent not found")

// AgentRepository resolves published agent configurations.
type AgentRepository interface {
	// FindPublishedByWidgetID returns the published agent bound to a widget,
	// or ErrAgentNotFound.
	FindPublishedByWidgetID(ctx context.Context, widgetID string) (*entities.Agent, error)
}
