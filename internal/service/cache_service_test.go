package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type memoryCache struct {
	data     map[string][]byte
	getErr   error
	deleted  []string
	patterns []string
	lastTTL  time.Duration
	setCalls int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.lastTTL = ttl
	m.setCalls++
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.deleted = append(m.deleted, k)
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	for k := range m.data {
		delete(m.data, k)
	}
	return nil
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newMemoryCache()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var got []string
	hit, err := svc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "k", []string{"a"}, 0))
	assert.Equal(t, 10*time.Minute, repo.lastTTL)

	hit, err = svc.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, got)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Zero(t, repo.setCalls)
	assert.False(t, svc.Enabled())
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("connection reset")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var dest int
	hit, err := svc.Get(context.Background(), "k", &dest)
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestPartitionCacheKey(t *testing.T) {
	assert.Equal(t, "timetable:10:A", PartitionCacheKey(10, "A"))
}

func TestCacheServiceInvalidateDeletesExactKeys(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	glob := PartitionCacheKey(10, "IPA*")
	require.NoError(t, svc.Set(ctx, glob, 1, 0))
	require.NoError(t, svc.Set(ctx, PartitionCacheKey(10, "IPA1"), 2, 0))
	require.NoError(t, svc.Set(ctx, PartitionCacheKey(10, "[AB]"), 3, 0))

	require.NoError(t, svc.Invalidate(ctx, glob, PartitionCacheKey(10, "[AB]")))
	assert.Equal(t, []string{"timetable:10:IPA*", "timetable:10:[AB]"}, repo.deleted)
	assert.Empty(t, repo.patterns)
	assert.NotContains(t, repo.data, glob)
	assert.Contains(t, repo.data, "timetable:10:IPA1")

	require.NoError(t, svc.InvalidatePattern(ctx, "timetable:*"))
	assert.Equal(t, []string{"timetable:*"}, repo.patterns)
	assert.Empty(t, repo.data)
}
