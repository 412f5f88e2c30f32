package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

const agentsCollection = "agents"

// AgentRepository reads published agents from the agents collection.
type AgentRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.AgentRepository = (*AgentRepository)(nil)

// NewAgentRepository creates a new MongoDB agent repository
func NewAgentRepository(db *mongo.Database, logger *zap.Logger) *AgentRepository {
	return &AgentRepository{
		collection: db.Collection(agentsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique widget index used by lookups.
func (r *AgentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "widget_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "agent_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create agent indexes: %w", err)
	}
	r.logger.Info("Agent indexes created successfully")
	return nil
}

// FindPublishedByWidgetID implements repositories.AgentRepository
func (r *AgentRepository) FindPublishedByWidgetID(ctx context.Context, widgetID string) (*entities.Agent, error) {
	if widgetID == "" {
		return nil, repositories.ErrAgentNotFound
	}

	filter := bson.M{"widget_id": widgetID, "published": true}

	var agent entities.Agent
	err := r.collection.FindOne(ctx, filter).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to find agent for widget %s: %w", widgetID, err)
	}

	return &agent, nil
}

// Save upserts an agent keyed by widget id.
func (r *AgentRepository) Save(ctx context.Context, agent *entities.Agent) error {
	if agent == nil {
		return errors.New("agent cannot be nil")
	}
	if err := agent.Validate(); err != nil {
		return err
	}

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"widget_id": agent.WidgetID},
		agent,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}
