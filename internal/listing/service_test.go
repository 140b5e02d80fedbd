package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/cache"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/query"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/store"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/interfaces"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// countingStore tracks how many times the listing path reaches storage.
type countingStore struct {
	*store.MemoryStore
	listCalls int
}

func (c *countingStore) List(ctx context.Context, spec *types.QuerySpec) ([]types.Summary, int, error) {
	c.listCalls++
	return c.MemoryStore.List(ctx, spec)
}

// faultyCache injects errors around a working in-memory cache.
type faultyCache struct {
	interfaces.PageCache
	failGet bool
	failPut bool
}

func (f *faultyCache) Get(ctx context.Context, key types.CacheKey) (*types.CachedPage, bool, error) {
	if f.failGet {
		return nil, false, errors.New("redis: connection refused")
	}
	return f.PageCache.Get(ctx, key)
}

func (f *faultyCache) Put(ctx context.Context, key types.CacheKey, page *types.CachedPage) error {
	if f.failPut {
		return errors.New("redis: connection refused")
	}
	return f.PageCache.Put(ctx, key, page)
}

func setup(t *testing.T, pc interfaces.PageCache) (*Service, *countingStore) {
	t.Helper()
	log := logger.NewNop()
	cs := &countingStore{MemoryStore: store.NewMemoryStore()}
	if pc == nil {
		pc = cache.NewMemoryCache(log)
	}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	svc := NewService(scope.NewResolver(log), query.NewBuilder(log), cs, pc, metrics, log)

	ctx := context.Background()
	patients := []*types.Patient{
		{ID: "p1", FirstName: "Alice", LastName: "Kanza", Gender: types.GenderFemale, CentreID: "c1"},
		{ID: "p2", FirstName: "Benoit", LastName: "Mbala", Gender: types.GenderMale, CentreID: "c1"},
		{ID: "p3", FirstName: "Chantal", LastName: "Ilunga", Gender: types.GenderFemale, CentreID: "c2"},
	}
	for _, p := range patients {
		require.NoError(t, cs.CreatePatient(ctx, p))
	}
	return svc, cs
}

var secretary = types.Actor{ID: "sec1", Role: types.RoleSecretary, CentreIDs: []string{"c1"}}

func patientsReq(page, size int) types.ListingRequest {
	return types.ListingRequest{Entity: types.EntityPatient, Page: page, PageSize: size}
}

func TestList_ScopedToCallerCentres(t *testing.T) {
	svc, _ := setup(t, nil)

	resp, err := svc.List(context.Background(), secretary, patientsReq(1, 10))
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalCount)
	for _, item := range resp.Items {
		assert.Equal(t, "c1", item.CentreID)
	}
}

func TestList_SecondIdenticalRequestHitsCache(t *testing.T) {
	svc, cs := setup(t, nil)
	ctx := context.Background()

	first, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)
	require.Equal(t, 1, cs.listCalls)

	second, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, cs.listCalls, "identical request must be served from cache")
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.TotalCount, second.TotalCount)
}

func TestList_DifferentFiltersMissCache(t *testing.T) {
	svc, cs := setup(t, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)

	filtered := patientsReq(1, 10)
	filtered.Filters = map[string]string{"q": "kanza"}
	resp, err := svc.List(ctx, secretary, filtered)
	require.NoError(t, err)

	assert.Equal(t, 2, cs.listCalls)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestList_CallersNeverShareCacheEntries(t *testing.T) {
	svc, cs := setup(t, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)

	other := types.Actor{ID: "sec2", Role: types.RoleSecretary, CentreIDs: []string{"c2"}}
	resp, err := svc.List(ctx, other, patientsReq(1, 10))
	require.NoError(t, err)

	assert.Equal(t, 2, cs.listCalls)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestList_CacheGetFailureDegradesToStore(t *testing.T) {
	fc := &faultyCache{PageCache: cache.NewMemoryCache(logger.NewNop()), failGet: true}
	svc, cs := setup(t, fc)
	ctx := context.Background()

	// Every request reaches the store, but all of them succeed.
	for i := 0; i < 3; i++ {
		resp, err := svc.List(ctx, secretary, patientsReq(1, 10))
		require.NoError(t, err)
		assert.Equal(t, 2, resp.TotalCount)
	}
	assert.Equal(t, 3, cs.listCalls)
}

func TestList_CachePutFailureStillServes(t *testing.T) {
	fc := &faultyCache{PageCache: cache.NewMemoryCache(logger.NewNop()), failPut: true}
	svc, cs := setup(t, fc)
	ctx := context.Background()

	resp, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalCount)

	// Nothing was stored, so the repeat goes back to the store.
	_, err = svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, cs.listCalls)
}

func TestList_InvalidRequestsNeverReachStore(t *testing.T) {
	svc, cs := setup(t, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, secretary, patientsReq(1, 33))
	assert.True(t, types.IsValidation(err))

	req := patientsReq(1, 10)
	req.Filters = map[string]string{"favourite_color": "blue"}
	_, err = svc.List(ctx, secretary, req)
	assert.True(t, types.IsValidation(err))

	nurse := types.Actor{ID: "n1", Role: types.RoleNurse}
	_, err = svc.List(ctx, nurse, patientsReq(1, 10))
	assert.True(t, types.IsPermissionDenied(err))

	assert.Equal(t, 0, cs.listCalls)
}

func TestInvalidate_SweepsCallerScope(t *testing.T) {
	svc, cs := setup(t, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, secretary, types.EntityPatient))

	_, err = svc.List(ctx, secretary, patientsReq(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, cs.listCalls)
}
