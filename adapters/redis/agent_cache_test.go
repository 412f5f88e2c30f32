package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

type countingRepo struct {
	agents map[string]*entities.Agent
	calls  int
}

func (r *countingRepo) FindPublishedByWidgetID(_ context.Context, widgetID string) (*entities.Agent, error) {
	r.calls++
	a, ok := r.agents[widgetID]
	if !ok {
		return nil, repositories.ErrAgentNotFound
	}
	c := *a
	return &c, nil
}

func setupAgentCache(t *testing.T, next repositories.AgentRepository, opts ...Option) (*AgentCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAgentCache(client, next, zaptest.NewLogger(t), opts...), mr
}

func TestAgentCacheReadThrough(t *testing.T) {
	repo := &countingRepo{agents: map[string]*entities.Agent{
		"W1": {ID: "A1", WidgetID: "W1", Published: true, Voice: entities.Voice{Provider: "azure"}},
	}}
	cache, mr := setupAgentCache(t, repo, WithTTL(time.Minute))
	ctx := context.Background()

	agent, err := cache.FindPublishedByWidgetID(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, "A1", agent.ID)
	assert.True(t, mr.Exists("suara:widget:W1"))

	agent, err = cache.FindPublishedByWidgetID(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, "azure", agent.Voice.Provider)
	assert.Equal(t, 1, repo.calls)

	mr.FastForward(2 * time.Minute)
	_, err = cache.FindPublishedByWidgetID(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestAgentCacheDoesNotCacheMisses(t *testing.T) {
	repo := &countingRepo{agents: map[string]*entities.Agent{}}
	cache, mr := setupAgentCache(t, repo, WithPrefix("test"))
	ctx := context.Background()

	_, err := cache.FindPublishedByWidgetID(ctx, "W9")
	assert.ErrorIs(t, err, repositories.ErrAgentNotFound)
	assert.False(t, mr.Exists("test:widget:W9"))

	repo.agents["W9"] = &entities.Agent{ID: "A9", WidgetID: "W9", Published: true}
	agent, err := cache.FindPublishedByWidgetID(ctx, "W9")
	require.NoError(t, err)
	assert.Equal(t, "A9", agent.ID)
}

func TestAgentCacheInvalidateAndCorruptEntries(t *testing.T) {
	repo := &countingRepo{agents: map[string]*entities.Agent{
		"W1": {ID: "A1", WidgetID: "W1", Published: true},
	}}
	cache, mr := setupAgentCache(t, repo)
	ctx := context.Background()

	require.NoError(t, mr.Set("suara:widget:W1", "{not json"))
	agent, err := cache.FindPublishedByWidgetID(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, "A1", agent.ID)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, cache.Invalidate(ctx, "W1"))
	assert.False(t, mr.Exists("suara:widget:W1"))
}

func TestAgentCacheFallsBackWhenRedisDown(t *testing.T) {
	repo := &countingRepo{agents: map[string]*entities.Agent{
		"W1": {ID: "A1", WidgetID: "W1", Published: true},
	}}
	cache, mr := setupAgentCache(t, repo)
	mr.Close()

	agent, err := cache.FindPublishedByWidgetID(context.Background(), "W1")
	require.NoError(t, err)
	assert.Equal(t, "A1", agent.ID)
}
