package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
)

// Func-field mocks with call counters.

type mockEndpointRepo struct {
	GetByIDFunc     func(ctx context.Context, id string) (*domain.Endpoint, error)
	ListEnabledFunc func(ctx context.Context) ([]*domain.Endpoint, error)

	listEnabledCalls int
}

func (m *mockEndpointRepo) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrEndpointNotFound
}

func (m *mockEndpointRepo) List(ctx context.Context) ([]*domain.Endpoint, error) { return nil, nil }

func (m *mockEndpointRepo) ListEnabled(ctx context.Context) ([]*domain.Endpoint, error) {
	m.listEnabledCalls++
	if m.ListEnabledFunc != nil {
		return m.ListEnabledFunc(ctx)
	}
	return nil, nil
}

func (m *mockEndpointRepo) Create(ctx context.Context, e *domain.Endpoint) error { return nil }
func (m *mockEndpointRepo) Update(ctx context.Context, e *domain.Endpoint) error { return nil }
func (m *mockEndpointRepo) Delete(ctx context.Context, id string) error          { return nil }

type mockModelRepo struct {
	ListEnabledByEndpointsFunc func(ctx context.Context, ids []string) ([]*domain.Model, error)

	listEnabledCalls int
}

func (m *mockModelRepo) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	return nil, domain.ErrModelNotFound
}

func (m *mockModelRepo) ListByEndpoint(ctx context.Context, endpointID string) ([]*domain.Model, error) {
	return nil, nil
}

func (m *mockModelRepo) ListEnabledByEndpoints(ctx context.Context, ids []string) ([]*domain.Model, error) {
	m.listEnabledCalls++
	if m.ListEnabledByEndpointsFunc != nil {
		return m.ListEnabledByEndpointsFunc(ctx, ids)
	}
	return nil, nil
}

func (m *mockModelRepo) InsertIfAbsent(ctx context.Context, models []*domain.Model) (int, error) {
	return 0, nil
}

func (m *mockModelRepo) Update(ctx context.Context, model *domain.Model) error { return nil }
func (m *mockModelRepo) Delete(ctx context.Context, id string) error           { return nil }

func TestResolveEndpoint(t *testing.T) {
	endpoints := &mockEndpointRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Endpoint, error) {
			switch id {
			case "enabled":
				return &domain.Endpoint{ID: id, Enabled: true}, nil
			case "disabled":
				return &domain.Endpoint{ID: id, Enabled: false}, nil
			default:
				return nil, domain.ErrEndpointNotFound
			}
		},
	}
	reg := New(endpoints, &mockModelRepo{})
	ctx := context.Background()

	if _, err := reg.ResolveEndpoint(ctx, "enabled"); err != nil {
		t.Errorf("enabled endpoint: err = %v", err)
	}
	if _, err := reg.ResolveEndpoint(ctx, "disabled"); !errors.Is(err, domain.ErrEndpointDisabled) {
		t.Errorf("disabled endpoint: err = %v, want ErrEndpointDisabled", err)
	}
	if _, err := reg.ResolveEndpoint(ctx, "missing"); !errors.Is(err, domain.ErrEndpointNotFound) {
		t.Errorf("missing endpoint: err = %v, want ErrEndpointNotFound", err)
	}

	// GetEndpoint ignores the enabled flag.
	if _, err := reg.GetEndpoint(ctx, "disabled"); err != nil {
		t.Errorf("GetEndpoint(disabled): err = %v", err)
	}
}

func TestListEnabledCatalog_ShortCircuitsOnNoEndpoints(t *testing.T) {
	endpoints := &mockEndpointRepo{
		ListEnabledFunc: func(ctx context.Context) ([]*domain.Endpoint, error) {
			return nil, nil
		},
	}
	models := &mockModelRepo{}
	reg := New(endpoints, models)

	catalog, err := reg.ListEnabledCatalog(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledCatalog: %v", err)
	}
	if len(catalog) != 0 {
		t.Errorf("catalog = %+v, want empty", catalog)
	}
	if endpoints.listEnabledCalls != 1 {
		t.Errorf("endpoint query count = %d, want 1", endpoints.listEnabledCalls)
	}
	if models.listEnabledCalls != 0 {
		t.Errorf("model query count = %d, want 0 (must short-circuit)", models.listEnabledCalls)
	}
}

func TestListEnabledCatalog_JoinsAndDropsOrphans(t *testing.T) {
	endpoints := &mockEndpointRepo{
		ListEnabledFunc: func(ctx context.Context) ([]*domain.Endpoint, error) {
			return []*domain.Endpoint{
				{ID: "ep-1", Name: "prod", ProviderType: domain.ProviderOpenAI, Enabled: true},
			}, nil
		},
	}
	models := &mockModelRepo{
		ListEnabledByEndpointsFunc: func(ctx context.Context, ids []string) ([]*domain.Model, error) {
			if len(ids) != 1 || ids[0] != "ep-1" {
				t.Errorf("model query scoped to %v, want [ep-1]", ids)
			}
			return []*domain.Model{
				{ID: "m-1", EndpointID: "ep-1", ModelID: "gpt-4o", ModelName: "GPT-4o"},
				{ID: "m-2", EndpointID: "ghost", ModelID: "orphan"},
			}, nil
		},
	}
	reg := New(endpoints, models)

	catalog, err := reg.ListEnabledCatalog(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledCatalog: %v", err)
	}
	if len(catalog) != 1 {
		t.Fatalf("catalog = %+v, want 1 entry (orphan dropped)", catalog)
	}
	entry := catalog[0]
	if entry.ModelID != "gpt-4o" || entry.DisplayName != "GPT-4o" ||
		entry.EndpointID != "ep-1" || entry.ProviderType != domain.ProviderOpenAI {
		t.Errorf("entry = %+v", entry)
	}
}

func TestListEnabledCatalog_CacheReadThrough(t *testing.T) {
	endpoints := &mockEndpointRepo{
		ListEnabledFunc: func(ctx context.Context) ([]*domain.Endpoint, error) {
			return []*domain.Endpoint{{ID: "ep-1", Name: "prod", Enabled: true}}, nil
		},
	}
	models := &mockModelRepo{
		ListEnabledByEndpointsFunc: func(ctx context.Context, ids []string) ([]*domain.Model, error) {
			return []*domain.Model{{ID: "m-1", EndpointID: "ep-1", ModelID: "gpt-4o"}}, nil
		},
	}
	reg := New(endpoints, models).WithCatalogCache(NewInMemoryCatalogCache(), time.Minute)
	ctx := context.Background()

	if _, err := reg.ListEnabledCatalog(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := reg.ListEnabledCatalog(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if endpoints.listEnabledCalls != 1 {
		t.Errorf("endpoint query count = %d, want 1 (second fetch served from cache)", endpoints.listEnabledCalls)
	}

	reg.InvalidateCatalog(ctx)
	if _, err := reg.ListEnabledCatalog(ctx); err != nil {
		t.Fatalf("post-invalidate fetch: %v", err)
	}
	if endpoints.listEnabledCalls != 2 {
		t.Errorf("endpoint query count after invalidate = %d, want 2", endpoints.listEnabledCalls)
	}
}
