// Package catalog keeps the stored model list in step with what each
// provider actually serves. Synchronization is additive: rows the admin has
// already curated are never renamed, re-enabled or deleted by a sync run.
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/metrics"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/repository"
	"github.com/qandu/ai-relay/internal/telemetry"
)

// maxListingBodyBytes bounds a model-listing response body.
const maxListingBodyBytes = 8 << 20

type Syncer struct {
	registry *registry.Registry
	models   repository.ModelRepository
	adapters *provider.Registry
	client   *http.Client
	timeout  time.Duration
}

func NewSyncer(reg *registry.Registry, models repository.ModelRepository, adapters *provider.Registry, client *http.Client, timeout time.Duration) *Syncer {
	return &Syncer{
		registry: reg,
		models:   models,
		adapters: adapters,
		client:   client,
		timeout:  timeout,
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	ModelsFound int `json:"models_found"`
	NewModels   int `json:"new_models"`
}

// SyncModels fetches the provider's model listing for an endpoint and
// inserts any identifiers not yet stored. New rows start disabled so they
// never appear in the catalog until an admin opts them in. Disabled
// endpoints can still be synced; admins typically stage models before
// turning an endpoint on.
func (s *Syncer) SyncModels(ctx context.Context, endpointID string) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog.sync")
	defer span.End()

	endpoint, err := s.registry.GetEndpoint(ctx, endpointID)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}

	telemetry.AddRelayAttributes(span, endpoint.ID, string(endpoint.ProviderType), "", "")

	adapter := s.adapters.Lookup(endpoint.ProviderType)
	listing, ok, err := adapter.ModelListingRequest(endpoint)
	if err != nil {
		metrics.RecordCatalogSync(endpoint.ID, "config_error", 0)
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}
	if !ok {
		// Provider family has no listing endpoint; nothing to discover.
		metrics.RecordCatalogSync(endpoint.ID, "ok", 0)
		return &SyncResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := fetchListing(ctx, s.client, listing)
	if err != nil {
		metrics.RecordCatalogSync(endpoint.ID, "fetch_error", 0)
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}

	ids, recognized := provider.ExtractModelIDs(body)
	if !recognized {
		err := fmt.Errorf("%w: model listing from %s endpoint %s", domain.ErrUnexpectedShape, endpoint.ProviderType, endpoint.ID)
		metrics.RecordCatalogSync(endpoint.ID, "shape_error", 0)
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}

	result := &SyncResult{ModelsFound: len(ids)}
	if len(ids) > 0 {
		rows := make([]*domain.Model, 0, len(ids))
		now := time.Now().UTC()
		for _, id := range ids {
			rows = append(rows, &domain.Model{
				ID:         uuid.NewString(),
				EndpointID: endpoint.ID,
				ModelID:    id,
				Enabled:    false,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}

		inserted, err := s.models.InsertIfAbsent(ctx, rows)
		if err != nil {
			metrics.RecordCatalogSync(endpoint.ID, "store_error", 0)
			telemetry.AddErrorAttribute(span, err)
			return nil, fmt.Errorf("store synced models: %w", err)
		}
		result.NewModels = inserted
	}

	metrics.RecordCatalogSync(endpoint.ID, "ok", result.ModelsFound)
	s.registry.InvalidateCatalog(ctx)

	slog.Info("model catalog synced",
		"endpoint_id", endpoint.ID,
		"provider_type", endpoint.ProviderType,
		"models_found", result.ModelsFound,
		"new_models", result.NewModels,
	)

	return result, nil
}

// fetchListing issues a built listing request and returns the 2xx body.
// Non-2xx replies become an UpstreamError with a truncated body as message.
func fetchListing(ctx context.Context, client *http.Client, listing *provider.Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, listing.Method, listing.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create listing request: %w", err)
	}
	if listing.Header != nil {
		httpReq.Header = listing.Header.Clone()
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch model listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &domain.UpstreamError{
			Status:  resp.StatusCode,
			Message: string(raw),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read model listing: %w", err)
	}
	return body, nil
}
