package payments

import (
	"context"
	"sync"
	"time"
)

// refreshMargin shortens the provider-stated token lifetime so a token is
// never used right at its expiry edge.
const refreshMargin = 60 * time.Second

// tokenCache holds the provider OAuth token for the whole process. Concurrent
// refreshers may race; the write that carries the latest-observed expiry wins,
// so a clearly-stale token can never replace a fresher one.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{now: time.Now}
}

// get returns the cached token, fetching a fresh one through fetch when the
// cache is empty or inside the refresh margin.
func (c *tokenCache) get(ctx context.Context, fetch func(context.Context) (string, time.Duration, error)) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiresAt.Add(-refreshMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, lifetime, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	c.store(token, c.now().Add(lifetime))
	return token, nil
}

func (c *tokenCache) store(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Keep the token with the later expiry; ties go to the last writer.
	if expiresAt.Before(c.expiresAt) {
		return
	}
	c.token = token
	c.expiresAt = expiresAt
}

// invalidate drops the cached token, forcing a refetch on next use. Called
// after the provider answers a 401-class response.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
