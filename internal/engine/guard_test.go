package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInflightGuardAcquireRelease(t *testing.T) {
	g := NewInflightGuard(30 * time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	key := g.Key("U1", "G1", "Gown A", now)
	assert.Equal(t, key, g.Key("U1", "G1", " gown a ", now.Add(time.Second)), "same bucket, case-insensitive subject")

	release, ok := g.Acquire(key, now)
	require.True(t, ok)
	_, ok = g.Acquire(key, now.Add(time.Second))
	assert.False(t, ok, "second acquire while in flight")

	release()
	assert.Equal(t, 0, g.Len())
	release2, ok := g.Acquire(key, now.Add(2*time.Second))
	require.True(t, ok)
	release2()
}

func TestInflightGuardStaleMarkerIsReplaced(t *testing.T) {
	g := NewInflightGuard(30 * time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	release, ok := g.Acquire("k", now)
	require.True(t, ok)

	_, ok = g.Acquire("k", now.Add(31*time.Second))
	require.True(t, ok)
	// the first holder's release must not clear the newer marker
	release()
	assert.Equal(t, 1, g.Len())
}

func TestInflightGuardEvict(t *testing.T) {
	g := NewInflightGuard(30 * time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g.Acquire("old", now)
	g.Acquire("new", now.Add(20*time.Second))

	assert.Equal(t, 1, g.Evict(now.Add(35*time.Second)))
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 1, g.Evict(now.Add(time.Minute)))
	assert.Equal(t, 0, g.Len())
}
