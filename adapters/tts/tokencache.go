package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenTTL keeps a margin under the ten minute lifetime of issued tokens.
const DefaultTokenTTL = 9 * time.Minute

// TokenFetcher issues a fresh access token.
type TokenFetcher func(ctx context.Context) (string, error)

// TokenCache hands out a cached access token and refreshes it once it is older
// than its TTL. Concurrent refreshes collapse into a single upstream call.
type TokenCache struct {
	fetch  TokenFetcher
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger

	group singleflight.Group

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// NewTokenCache creates a cache around fetch. A zero ttl uses DefaultTokenTTL
// and a nil clock uses the wall clock.
func NewTokenCache(fetch TokenFetcher, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TokenCache{fetch: fetch, ttl: ttl, clock: clk, logger: logger}
}

// Token returns a valid token, fetching one when the cached token is missing or stale.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		token, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.fetchedAt = c.clock.Now()
		c.mu.Unlock()
		c.logger.Debug("Refreshed access token")
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || c.clock.Since(c.fetchedAt) >= c.ttl {
		return "", false
	}
	return c.token, true
}

// IssueTokenFetcher exchanges a subscription key for a bearer token at an
// issueToken endpoint.
func IssueTokenFetcher(client *http.Client, endpoint, subscriptionKey string) TokenFetcher {
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create token request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", subscriptionKey)
		req.Header.Set("Content-Length", "0")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("token request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		if err != nil {
			return "", fmt.Errorf("failed to read token response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
		}

		token := strings.TrimSpace(string(body))
		if token == "" {
			return "", fmt.Errorf("token endpoint returned an empty token")
		}
		return token, nil
	}
}
