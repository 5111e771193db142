// Package registry resolves logical endpoint identifiers into concrete
// provider configuration and exposes the joined catalog of selectable
// models. It is read-only against the store; writes happen in the admin
// paths and the catalog synchronizer.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/repository"
)

type Registry struct {
	endpoints repository.EndpointRepository
	models    repository.ModelRepository
	cache     CatalogCache
	cacheTTL  time.Duration
}

func New(endpoints repository.EndpointRepository, models repository.ModelRepository) *Registry {
	return &Registry{
		endpoints: endpoints,
		models:    models,
	}
}

// WithCatalogCache enables read-through caching of the enabled catalog.
func (r *Registry) WithCatalogCache(cache CatalogCache, ttl time.Duration) *Registry {
	r.cache = cache
	r.cacheTTL = ttl
	return r
}

// ResolveEndpoint returns the connection details for an enabled endpoint.
// A missing row is ErrEndpointNotFound; an existing but disabled row is
// ErrEndpointDisabled — callers surface the two distinctly.
func (r *Registry) ResolveEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	endpoint, err := r.endpoints.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !endpoint.Enabled {
		return nil, fmt.Errorf("endpoint %s: %w", id, domain.ErrEndpointDisabled)
	}

	return endpoint, nil
}

// GetEndpoint returns endpoint configuration regardless of the enabled
// flag. Catalog sync and admin views legitimately operate on endpoints
// that are not yet enabled.
func (r *Registry) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	return r.endpoints.GetByID(ctx, id)
}

// ListEnabledCatalog computes the join of enabled models with their enabled
// parent endpoints. The fetch is two-stage: when no endpoint is enabled the
// model query is never issued.
func (r *Registry) ListEnabledCatalog(ctx context.Context) ([]domain.SelectableModel, error) {
	if r.cache != nil {
		if catalog, ok := r.cache.Get(ctx); ok {
			return catalog, nil
		}
	}

	endpoints, err := r.endpoints.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		return []domain.SelectableModel{}, nil
	}

	byID := make(map[string]*domain.Endpoint, len(endpoints))
	ids := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		byID[endpoint.ID] = endpoint
		ids = append(ids, endpoint.ID)
	}

	models, err := r.models.ListEnabledByEndpoints(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list enabled models: %w", err)
	}

	catalog := make([]domain.SelectableModel, 0, len(models))
	for _, model := range models {
		endpoint, ok := byID[model.EndpointID]
		if !ok {
			// Orphaned rows are skipped, never fatal.
			slog.Warn("model references unknown endpoint",
				"model_id", model.ModelID,
				"endpoint_id", model.EndpointID,
			)
			continue
		}
		catalog = append(catalog, domain.SelectableModel{
			ModelID:      model.ModelID,
			DisplayName:  model.DisplayName(),
			EndpointID:   endpoint.ID,
			EndpointName: endpoint.Name,
			ProviderType: endpoint.ProviderType,
		})
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, catalog, r.cacheTTL); err != nil {
			slog.Warn("failed to cache catalog", "error", err)
		}
	}

	return catalog, nil
}

// InvalidateCatalog drops the cached catalog after an admin mutation or a
// catalog sync.
func (r *Registry) InvalidateCatalog(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx); err != nil {
		slog.Warn("failed to invalidate catalog cache", "error", err)
	}
}
