package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
)

// InMemoryEndpointRepository is the no-database variant used in tests and
// local development.
type InMemoryEndpointRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*domain.Endpoint
	models    *InMemoryModelRepository
}

func NewInMemoryEndpointRepository() *InMemoryEndpointRepository {
	return &InMemoryEndpointRepository{
		endpoints: make(map[string]*domain.Endpoint),
	}
}

// WithModels wires a model repository so endpoint deletion cascades, matching
// the ON DELETE CASCADE behavior of the Postgres schema.
func (r *InMemoryEndpointRepository) WithModels(models *InMemoryModelRepository) *InMemoryEndpointRepository {
	r.models = models
	return r
}

func (r *InMemoryEndpointRepository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoint, ok := r.endpoints[id]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}

	copied := *endpoint
	return &copied, nil
}

func (r *InMemoryEndpointRepository) List(ctx context.Context) ([]*domain.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints := make([]*domain.Endpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		copied := *endpoint
		endpoints = append(endpoints, &copied)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].CreatedAt.After(endpoints[j].CreatedAt)
	})

	return endpoints, nil
}

func (r *InMemoryEndpointRepository) ListEnabled(ctx context.Context) ([]*domain.Endpoint, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*domain.Endpoint, 0, len(all))
	for _, endpoint := range all {
		if endpoint.Enabled {
			enabled = append(enabled, endpoint)
		}
	}

	return enabled, nil
}

func (r *InMemoryEndpointRepository) Create(ctx context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *endpoint
	r.endpoints[endpoint.ID] = &copied
	return nil
}

func (r *InMemoryEndpointRepository) Update(ctx context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[endpoint.ID]; !ok {
		return domain.ErrEndpointNotFound
	}

	copied := *endpoint
	copied.UpdatedAt = time.Now()
	r.endpoints[endpoint.ID] = &copied
	return nil
}

func (r *InMemoryEndpointRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.endpoints[id]; !ok {
		r.mu.Unlock()
		return domain.ErrEndpointNotFound
	}
	delete(r.endpoints, id)
	r.mu.Unlock()

	if r.models != nil {
		r.models.deleteByEndpoint(id)
	}
	return nil
}

type InMemoryModelRepository struct {
	mu     sync.RWMutex
	models map[string]*domain.Model
}

func NewInMemoryModelRepository() *InMemoryModelRepository {
	return &InMemoryModelRepository{
		models: make(map[string]*domain.Model),
	}
}

func (r *InMemoryModelRepository) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.models[id]
	if !ok {
		return nil, domain.ErrModelNotFound
	}

	copied := *model
	return &copied, nil
}

func (r *InMemoryModelRepository) ListByEndpoint(ctx context.Context, endpointID string) ([]*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []*domain.Model
	for _, model := range r.models {
		if model.EndpointID == endpointID {
			copied := *model
			models = append(models, &copied)
		}
	}
	sortModels(models)

	return models, nil
}

func (r *InMemoryModelRepository) ListEnabledByEndpoints(ctx context.Context, ids []string) ([]*domain.Model, error) {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []*domain.Model
	for _, model := range r.models {
		if !model.Enabled {
			continue
		}
		if _, ok := idSet[model.EndpointID]; !ok {
			continue
		}
		copied := *model
		models = append(models, &copied)
	}
	sortModels(models)

	return models, nil
}

func (r *InMemoryModelRepository) InsertIfAbsent(ctx context.Context, models []*domain.Model) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, model := range models {
		if r.existsLocked(model.EndpointID, model.ModelID) {
			continue
		}
		copied := *model
		r.models[model.ID] = &copied
		inserted++
	}

	return inserted, nil
}

func (r *InMemoryModelRepository) existsLocked(endpointID, modelID string) bool {
	for _, model := range r.models {
		if model.EndpointID == endpointID && model.ModelID == modelID {
			return true
		}
	}
	return false
}

func (r *InMemoryModelRepository) Update(ctx context.Context, model *domain.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[model.ID]; !ok {
		return domain.ErrModelNotFound
	}

	copied := *model
	copied.UpdatedAt = time.Now()
	r.models[model.ID] = &copied
	return nil
}

func (r *InMemoryModelRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[id]; !ok {
		return domain.ErrModelNotFound
	}
	delete(r.models, id)
	return nil
}

func (r *InMemoryModelRepository) deleteByEndpoint(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, model := range r.models {
		if model.EndpointID == endpointID {
			delete(r.models, id)
		}
	}
}

func sortModels(models []*domain.Model) {
	sort.Slice(models, func(i, j int) bool {
		return models[i].ModelID < models[j].ModelID
	})
}
