// Package redis caches published-agent lookups in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "suara"
)

// AgentCache is a read-through cache in front of another AgentRepository.
// Misses are not cached so a newly published agent is visible at once.
type AgentCache struct {
	client *redis.Client
	next   repositories.AgentRepository
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

var _ repositories.AgentRepository = (*AgentCache)(nil)

// Option configures an AgentCache.
type Option func(*AgentCache)

// WithTTL sets how long a cached agent is served. Default is 5 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(c *AgentCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix. Default is "suara".
func WithPrefix(prefix string) Option {
	return func(c *AgentCache) {
		c.prefix = prefix
	}
}

// NewAgentCache wraps next with a Redis cache.
func NewAgentCache(client *redis.Client, next repositories.AgentRepository, logger *zap.Logger, opts ...Option) *AgentCache {
	c := &AgentCache{
		client: client,
		next:   next,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindPublishedByWidgetID serves from Redis and falls back to the wrapped
// repository. Redis failures degrade to the wrapped repository.
func (c *AgentCache) FindPublishedByWidgetID(ctx context.Context, widgetID string) (*entities.Agent, error) {
	key := c.widgetKey(widgetID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var agent entities.Agent
		if err := json.Unmarshal(data, &agent); err == nil {
			return &agent, nil
		}
		c.logger.Warn("Dropping undecodable cached agent", zap.String("widgetId", widgetID))
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Agent cache unavailable", zap.String("widgetId", widgetID), zap.Error(err))
	}

	agent, err := c.next.FindPublishedByWidgetID(ctx, widgetID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(agent); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("Failed to cache agent", zap.String("widgetId", widgetID), zap.Error(err))
		}
	}
	return agent, nil
}

// Invalidate drops the cached agent for widgetID.
func (c *AgentCache) Invalidate(ctx context.Context, widgetID string) error {
	if err := c.client.Del(ctx, c.widgetKey(widgetID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *AgentCache) widgetKey(widgetID string) string {
	return fmt.Sprintf("%s:widget:%s", c.prefix, widgetID)
}
