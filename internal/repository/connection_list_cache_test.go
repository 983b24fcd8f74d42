package repository

import (
	"context"
	"testing"

	"github.com/marketopshq/connecthub/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingListCache counts calls so tier routing can be asserted.
type recordingListCache struct {
	data map[int64][]service.Connection

	gets        int
	sets        int
	invalidates int
}

func newRecordingListCache() *recordingListCache {
	return &recordingListCache{data: make(map[int64][]service.Connection)}
}

func (c *recordingListCache) Get(_ context.Context, agencyID int64) ([]service.Connection, error) {
	c.gets++
	return c.data[agencyID], nil
}

func (c *recordingListCache) Set(_ context.Context, agencyID int64, conns []service.Connection) error {
	c.sets++
	c.data[agencyID] = conns
	return nil
}

func (c *recordingListCache) Invalidate(_ context.Context, agencyID int64) error {
	c.invalidates++
	delete(c.data, agencyID)
	return nil
}

func TestMemoryConnectionListCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryConnectionListCache()

	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got, "cold cache misses")

	conns := []service.Connection{{ID: 1, AgencyID: 1, Provider: "google"}}
	require.NoError(t, cache.Set(ctx, 1, conns))

	got, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "google", got[0].Provider)

	require.NoError(t, cache.Invalidate(ctx, 1))
	got, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTieredConnectionListCache_LocalHitSkipsShared(t *testing.T) {
	ctx := context.Background()
	shared := newRecordingListCache()
	cache := NewTieredConnectionListCache(NewMemoryConnectionListCache(), shared)

	conns := []service.Connection{{ID: 7, AgencyID: 3, Provider: "meta"}}
	require.NoError(t, cache.Set(ctx, 3, conns))
	require.Equal(t, 1, shared.sets)

	for i := 0; i < 3; i++ {
		got, err := cache.Get(ctx, 3)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Zero(t, shared.gets, "warm local layer answers without touching the shared cache")
}

func TestTieredConnectionListCache_MissBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	shared := newRecordingListCache()
	shared.data[5] = []service.Connection{{ID: 2, AgencyID: 5, Provider: "shopify"}}
	cache := NewTieredConnectionListCache(NewMemoryConnectionListCache(), shared)

	got, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, shared.gets)

	// The second read is served locally from the backfilled entry.
	got, err = cache.Get(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, shared.gets)
}

func TestTieredConnectionListCache_InvalidateClearsBothLayers(t *testing.T) {
	ctx := context.Background()
	shared := newRecordingListCache()
	cache := NewTieredConnectionListCache(NewMemoryConnectionListCache(), shared)

	require.NoError(t, cache.Set(ctx, 9, []service.Connection{{ID: 4, AgencyID: 9, Provider: "klaviyo"}}))
	require.NoError(t, cache.Invalidate(ctx, 9))
	assert.Equal(t, 1, shared.invalidates)

	got, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, got, "neither layer serves a stale entry after invalidation")
}
