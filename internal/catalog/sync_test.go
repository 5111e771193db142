package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/httputil"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/provider/openaicompat"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/repository"
)

type syncFixture struct {
	syncer    *Syncer
	endpoints *repository.InMemoryEndpointRepository
	models    *repository.InMemoryModelRepository
}

func newSyncFixture(t *testing.T, endpoints ...*domain.Endpoint) *syncFixture {
	t.Helper()

	endpointRepo := repository.NewInMemoryEndpointRepository()
	modelRepo := repository.NewInMemoryModelRepository()
	for _, endpoint := range endpoints {
		if err := endpointRepo.Create(context.Background(), endpoint); err != nil {
			t.Fatalf("seed endpoint: %v", err)
		}
	}

	reg := registry.New(endpointRepo, modelRepo)
	adapters := provider.NewRegistry(openaicompat.New())
	syncer := NewSyncer(reg, modelRepo, adapters, httputil.DefaultClient(), 10*time.Second)

	return &syncFixture{syncer: syncer, endpoints: endpointRepo, models: modelRepo}
}

func listingEndpoint(baseURL string) *domain.Endpoint {
	return &domain.Endpoint{
		ID:           "ep-1",
		Name:         "local",
		ProviderType: domain.ProviderCustom,
		BaseURL:      baseURL,
		Enabled:      true,
	}
}

func TestSyncModels_InsertsNewModelsDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"alpha"},{"id":"beta"}]}`))
	}))
	defer server.Close()

	f := newSyncFixture(t, listingEndpoint(server.URL))

	result, err := f.syncer.SyncModels(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("SyncModels: %v", err)
	}
	if result.ModelsFound != 2 || result.NewModels != 2 {
		t.Errorf("result = %+v, want 2 found / 2 new", result)
	}

	stored, err := f.models.ListByEndpoint(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("ListByEndpoint: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d models, want 2", len(stored))
	}
	for _, m := range stored {
		if m.Enabled {
			t.Errorf("model %q inserted enabled, want disabled until an admin opts in", m.ModelID)
		}
		if m.ID == "" {
			t.Errorf("model %q has no generated id", m.ModelID)
		}
	}
}

func TestSyncModels_ResyncPreservesAdminState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"alpha"},{"id":"beta"}]}`))
	}))
	defer server.Close()

	f := newSyncFixture(t, listingEndpoint(server.URL))
	ctx := context.Background()

	if _, err := f.syncer.SyncModels(ctx, "ep-1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Admin enables alpha and gives it a display name.
	stored, _ := f.models.ListByEndpoint(ctx, "ep-1")
	var alpha *domain.Model
	for _, m := range stored {
		if m.ModelID == "alpha" {
			alpha = m
		}
	}
	if alpha == nil {
		t.Fatal("alpha not stored after first sync")
	}
	alpha.Enabled = true
	alpha.ModelName = "Alpha Prime"
	if err := f.models.Update(ctx, alpha); err != nil {
		t.Fatalf("Update: %v", err)
	}

	result, err := f.syncer.SyncModels(ctx, "ep-1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.ModelsFound != 2 || result.NewModels != 0 {
		t.Errorf("result = %+v, want 2 found / 0 new", result)
	}

	after, _ := f.models.GetByID(ctx, alpha.ID)
	if !after.Enabled || after.ModelName != "Alpha Prime" {
		t.Errorf("resync altered admin state: %+v", after)
	}
}

func TestSyncModels_AllowedOnDisabledEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"alpha"}]}`))
	}))
	defer server.Close()

	endpoint := listingEndpoint(server.URL)
	endpoint.Enabled = false
	f := newSyncFixture(t, endpoint)

	result, err := f.syncer.SyncModels(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("SyncModels on disabled endpoint: %v", err)
	}
	if result.NewModels != 1 {
		t.Errorf("NewModels = %d, want 1", result.NewModels)
	}
}

func TestSyncModels_UnknownEndpoint(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.syncer.SyncModels(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrEndpointNotFound) {
		t.Fatalf("err = %v, want ErrEndpointNotFound", err)
	}
}

func TestSyncModels_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	f := newSyncFixture(t, listingEndpoint(server.URL))

	_, err := f.syncer.SyncModels(context.Background(), "ep-1")
	var upstreamErr *domain.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upstreamErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", upstreamErr.Status)
	}

	stored, _ := f.models.ListByEndpoint(context.Background(), "ep-1")
	if len(stored) != 0 {
		t.Errorf("stored %d models after failed sync, want 0", len(stored))
	}
}

func TestSyncModels_UnrecognizedListingShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totally":"different"}`))
	}))
	defer server.Close()

	f := newSyncFixture(t, listingEndpoint(server.URL))

	_, err := f.syncer.SyncModels(context.Background(), "ep-1")
	if !errors.Is(err, domain.ErrUnexpectedShape) {
		t.Fatalf("err = %v, want ErrUnexpectedShape", err)
	}
}
