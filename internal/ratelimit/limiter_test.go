package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("ws_CO_1"), "attempt %d should pass", i)
	}
	assert.False(t, l.Allow("ws_CO_1"))
}

func TestAllowIsPerKey(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestWindowSlides(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k"))
	now = base.Add(30 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	// The first attempt ages out; one slot frees up.
	now = base.Add(70 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = base.Add(30 * time.Second)
	l.Allow("fresh")

	now = base.Add(90 * time.Second)
	removed := l.Sweep()

	assert.Equal(t, 1, removed)
	assert.NotContains(t, l.hits, "old")
	assert.Contains(t, l.hits, "fresh")
}
