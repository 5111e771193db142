// Package repository persists endpoint and model configuration. The schema
// is owned by the hosting platform; this package only reads and writes the
// ai_endpoints and ai_endpoint_models tables.
package repository

import (
	"context"

	"github.com/qandu/ai-relay/internal/domain"
)

type EndpointRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Endpoint, error)
	List(ctx context.Context) ([]*domain.Endpoint, error)
	ListEnabled(ctx context.Context) ([]*domain.Endpoint, error)
	Create(ctx context.Context, endpoint *domain.Endpoint) error
	Update(ctx context.Context, endpoint *domain.Endpoint) error
	Delete(ctx context.Context, id string) error
}

type ModelRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Model, error)
	ListByEndpoint(ctx context.Context, endpointID string) ([]*domain.Model, error)
	// ListEnabledByEndpoints returns enabled models whose parent endpoint is
	// in ids. Callers must not pass an empty id set; the registry
	// short-circuits before reaching the store.
	ListEnabledByEndpoints(ctx context.Context, ids []string) ([]*domain.Model, error)
	// InsertIfAbsent inserts rows whose (endpoint_id, model_id) pair is not
	// yet present and reports how many were inserted. Existing rows are left
	// untouched: enabled flags and display names survive re-sync.
	InsertIfAbsent(ctx context.Context, models []*domain.Model) (int, error)
	Update(ctx context.Context, model *domain.Model) error
	Delete(ctx context.Context, id string) error
}
