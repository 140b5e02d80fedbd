package listing

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/query"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/interfaces"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

// Service runs the read path: resolve the caller's scope, merge it with the
// requested filters, then serve the page from cache or store. A failing
// cache degrades to the store; it never degrades to stale or broadened data.
type Service struct {
	resolver *scope.Resolver
	builder  *query.Builder
	store    interfaces.RecordStore
	cache    interfaces.PageCache
	metrics  *monitoring.Metrics
	logger   *logger.Logger
}

// NewService creates a listing service
func NewService(resolver *scope.Resolver, builder *query.Builder, store interfaces.RecordStore,
	cache interfaces.PageCache, metrics *monitoring.Metrics, log *logger.Logger) *Service {
	return &Service{
		resolver: resolver,
		builder:  builder,
		store:    store,
		cache:    cache,
		metrics:  metrics,
		logger:   log,
	}
}

// List serves one page of the entity listing visible to the actor.
func (s *Service) List(ctx context.Context, actor types.Actor, req types.ListingRequest) (*types.ListingResponse, error) {
	sc, err := s.resolver.Resolve(actor)
	if err != nil {
		return nil, err
	}

	spec, err := s.builder.Build(req.Entity, req.Filters, sc, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	s.metrics.ListingRequests.WithLabelValues(string(req.Entity), string(actor.Role)).Inc()
	timer := prometheus.NewTimer(s.metrics.ListingDuration.WithLabelValues(string(req.Entity)))
	defer timer.ObserveDuration()

	key := types.CacheKey{
		Entity:      req.Entity,
		CallerID:    actor.ID,
		Role:        actor.Role,
		Page:        spec.Page,
		PageSize:    spec.PageSize,
		Fingerprint: spec.Fingerprint,
	}

	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.CacheDegradations.Inc()
		s.logger.WithActor(actor).WithError(err).Warn("Cache read failed, serving from store")
	} else if hit {
		s.metrics.CacheHits.WithLabelValues(string(req.Entity)).Inc()
		return &types.ListingResponse{
			Items:      cached.Items,
			TotalCount: cached.TotalCount,
			Page:       cached.Page,
			PageSize:   cached.PageSize,
		}, nil
	} else {
		s.metrics.CacheMisses.WithLabelValues(string(req.Entity)).Inc()
	}

	items, total, err := s.store.List(ctx, spec)
	if err != nil {
		return nil, err
	}

	page := &types.CachedPage{
		Items:      items,
		TotalCount: total,
		Page:       spec.Page,
		PageSize:   spec.PageSize,
		StoredAt:   time.Now().UTC(),
	}
	if err := s.cache.Put(ctx, key, page); err != nil {
		s.metrics.CacheDegradations.Inc()
		s.logger.WithActor(actor).WithError(err).Warn("Cache write failed, result served uncached")
	}

	return &types.ListingResponse{
		Items:      items,
		TotalCount: total,
		Page:       spec.Page,
		PageSize:   spec.PageSize,
	}, nil
}

// Invalidate clears every cached page of the actor's (entity, caller, role)
// scope. Write paths call this after a committed change; a failed sweep is
// surfaced so the caller knows reads may bypass the cache.
func (s *Service) Invalidate(ctx context.Context, actor types.Actor, entity types.EntityType) error {
	s.metrics.CacheInvalidations.WithLabelValues(string(entity)).Inc()
	return s.cache.Invalidate(ctx, entity, actor.ID, actor.Role)
}
