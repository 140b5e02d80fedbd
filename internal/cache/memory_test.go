package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

func key(entity types.EntityType, caller string, role types.Role, page, size int, fp string) types.CacheKey {
	return types.CacheKey{
		Entity:      entity,
		CallerID:    caller,
		Role:        role,
		Page:        page,
		PageSize:    size,
		Fingerprint: fp,
	}
}

func page(total int) *types.CachedPage {
	return &types.CachedPage{
		Items:      []types.Summary{{ID: "p1", Entity: types.EntityPatient, Label: "ONE A"}},
		TotalCount: total,
		Page:       1,
		PageSize:   10,
		StoredAt:   time.Now(),
	}
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(logger.NewNop())
	ctx := context.Background()
	k := key(types.EntityPatient, "u1", types.RoleDoctor, 1, 10, "none")

	_, hit, err := c.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Put(ctx, k, page(42)))

	got, hit, err := c.Get(ctx, k)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 42, got.TotalCount)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

// After a sweep, every page of the caller's key space misses: all tracked
// page numbers, all allowed page sizes, every fingerprint that was stored.
func TestMemoryCache_InvalidationCompleteness(t *testing.T) {
	c := NewMemoryCache(logger.NewNop())
	ctx := context.Background()

	fingerprints := []string{"none", "aaaa", "bbbb"}
	for p := 1; p <= MaxTrackedPages; p++ {
		for _, size := range types.AllowedPageSizes {
			for _, fp := range fingerprints {
				k := key(types.EntityPatient, "u1", types.RoleSecretary, p, size, fp)
				require.NoError(t, c.Put(ctx, k, page(p)))
			}
		}
	}
	require.Equal(t, MaxTrackedPages*len(types.AllowedPageSizes)*len(fingerprints), c.Len())

	require.NoError(t, c.Invalidate(ctx, types.EntityPatient, "u1", types.RoleSecretary))

	for p := 1; p <= MaxTrackedPages; p++ {
		for _, size := range types.AllowedPageSizes {
			for _, fp := range fingerprints {
				k := key(types.EntityPatient, "u1", types.RoleSecretary, p, size, fp)
				_, hit, err := c.Get(ctx, k)
				require.NoError(t, err)
				assert.False(t, hit, "page %d size %d fp %s survived the sweep", p, size, fp)
			}
		}
	}
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_InvalidationScopedToCaller(t *testing.T) {
	c := NewMemoryCache(logger.NewNop())
	ctx := context.Background()

	mine := key(types.EntityPatient, "u1", types.RoleDoctor, 1, 10, "none")
	other := key(types.EntityPatient, "u2", types.RoleDoctor, 1, 10, "none")
	otherEntity := key(types.EntityConsultation, "u1", types.RoleDoctor, 1, 10, "none")
	require.NoError(t, c.Put(ctx, mine, page(1)))
	require.NoError(t, c.Put(ctx, other, page(2)))
	require.NoError(t, c.Put(ctx, otherEntity, page(3)))

	require.NoError(t, c.Invalidate(ctx, types.EntityPatient, "u1", types.RoleDoctor))

	_, hit, _ := c.Get(ctx, mine)
	assert.False(t, hit)
	_, hit, _ = c.Get(ctx, other)
	assert.True(t, hit)
	_, hit, _ = c.Get(ctx, otherEntity)
	assert.True(t, hit)
}

// Pages outside the tracked bound are never stored, which is what keeps the
// invalidation sweep complete.
func TestMemoryCache_RefusesUntrackedKeys(t *testing.T) {
	c := NewMemoryCache(logger.NewNop())
	ctx := context.Background()

	deepPage := key(types.EntityPatient, "u1", types.RoleDoctor, MaxTrackedPages+1, 10, "none")
	require.NoError(t, c.Put(ctx, deepPage, page(1)))
	_, hit, _ := c.Get(ctx, deepPage)
	assert.False(t, hit)

	oddSize := key(types.EntityPatient, "u1", types.RoleDoctor, 1, 33, "none")
	require.NoError(t, c.Put(ctx, oddSize, page(1)))
	_, hit, _ = c.Get(ctx, oddSize)
	assert.False(t, hit)

	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_FingerprintIsAKeyDimension(t *testing.T) {
	c := NewMemoryCache(logger.NewNop())
	ctx := context.Background()

	filtered := key(types.EntityPatient, "u1", types.RoleDoctor, 1, 10, "aaaa")
	unfiltered := key(types.EntityPatient, "u1", types.RoleDoctor, 1, 10, "none")
	require.NoError(t, c.Put(ctx, filtered, page(5)))

	_, hit, _ := c.Get(ctx, unfiltered)
	assert.False(t, hit, "different filters must never share a cache entry")

	got, hit, _ := c.Get(ctx, filtered)
	require.True(t, hit)
	assert.Equal(t, 5, got.TotalCount)
}
