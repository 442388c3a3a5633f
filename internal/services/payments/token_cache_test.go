package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCacheReusesLiveToken(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newTokenCache()
	cache.now = func() time.Time { return base }

	fetches := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		fetches++
		return "tok-1", time.Hour, nil
	}

	for i := 0; i < 3; i++ {
		token, err := cache.get(context.Background(), fetch)
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}
	assert.Equal(t, 1, fetches)
}

func TestTokenCacheRefreshesInsideMargin(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	cache := newTokenCache()
	cache.now = func() time.Time { return now }

	fetches := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		fetches++
		return "tok", time.Hour, nil
	}

	_, err := cache.get(context.Background(), fetch)
	require.NoError(t, err)

	// 30s of lifetime left: inside the 60s margin, so the cached token no
	// longer counts as live.
	now = base.Add(time.Hour - 30*time.Second)
	_, err = cache.get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestTokenCacheStoreKeepsLaterExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newTokenCache()
	cache.now = func() time.Time { return base }

	cache.store("fresh", base.Add(time.Hour))
	cache.store("stale", base.Add(time.Minute))

	assert.Equal(t, "fresh", cache.token)

	// A tie goes to the last writer.
	cache.store("tied", base.Add(time.Hour))
	assert.Equal(t, "tied", cache.token)
}

func TestTokenCacheInvalidateForcesRefetch(t *testing.T) {
	cache := newTokenCache()

	fetches := 0
	fetch := func(context.Context) (string, time.Duration, error) {
		fetches++
		return "tok", time.Hour, nil
	}

	_, err := cache.get(context.Background(), fetch)
	require.NoError(t, err)

	cache.invalidate()

	_, err = cache.get(context.Background(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestTokenCacheFetchError(t *testing.T) {
	cache := newTokenCache()
	wantErr := errors.New("provider down")

	_, err := cache.get(context.Background(), func(context.Context) (string, time.Duration, error) {
		return "", 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, cache.token)
}
