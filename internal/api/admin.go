package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/qandu/ai-relay/internal/catalog"
	"github.com/qandu/ai-relay/internal/crypto"
	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/repository"
)

// AdminHandler manages endpoint and model configuration. Credentials are
// write-only: responses always carry the masked form.
type AdminHandler struct {
	endpoints repository.EndpointRepository
	models    repository.ModelRepository
	registry  *registry.Registry
	syncer    *catalog.Syncer
	tester    *catalog.Tester
	mux       *http.ServeMux
}

func NewAdminHandler(endpoints repository.EndpointRepository, models repository.ModelRepository, reg *registry.Registry, syncer *catalog.Syncer, tester *catalog.Tester) *AdminHandler {
	h := &AdminHandler{
		endpoints: endpoints,
		models:    models,
		registry:  reg,
		syncer:    syncer,
		tester:    tester,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /admin/endpoints", h.listEndpoints)
	h.mux.HandleFunc("POST /admin/endpoints", h.createEndpoint)
	h.mux.HandleFunc("POST /admin/endpoints/test", h.testConnection)
	h.mux.HandleFunc("GET /admin/endpoints/{id}", h.getEndpoint)
	h.mux.HandleFunc("PUT /admin/endpoints/{id}", h.updateEndpoint)
	h.mux.HandleFunc("DELETE /admin/endpoints/{id}", h.deleteEndpoint)
	h.mux.HandleFunc("GET /admin/endpoints/{id}/models", h.listEndpointModels)
	h.mux.HandleFunc("POST /admin/endpoints/{id}/models", h.syncModels)
	h.mux.HandleFunc("PUT /admin/models/{id}", h.updateModel)
	h.mux.HandleFunc("DELETE /admin/models/{id}", h.deleteModel)

	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// endpointResponse is the admin view of an endpoint: everything the row
// holds except the credential, which is masked.
type endpointResponse struct {
	*domain.Endpoint
	Credential string `json:"credential,omitempty"`
}

func maskedEndpoint(e *domain.Endpoint) endpointResponse {
	return endpointResponse{
		Endpoint:   e,
		Credential: crypto.MaskCredential(e.Credential),
	}
}

func (h *AdminHandler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.endpoints.List(r.Context())
	if err != nil {
		slog.Error("failed to list endpoints", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	views := make([]endpointResponse, 0, len(endpoints))
	for _, e := range endpoints {
		views = append(views, maskedEndpoint(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"endpoints": views,
		"count":     len(views),
	})
}

type CreateEndpointRequest struct {
	Name         string `json:"name"`
	ProviderType string `json:"provider_type"`
	BaseURL      string `json:"base_url"`
	Credential   string `json:"credential"`
	Enabled      *bool  `json:"enabled"`
	OwnerID      string `json:"owner_id"`
}

func (h *AdminHandler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeAdminError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ProviderType == "" {
		writeAdminError(w, http.StatusBadRequest, "provider_type is required")
		return
	}

	providerType := domain.ProviderType(req.ProviderType)
	if providerType.RequiresBaseURL() && req.BaseURL == "" {
		writeAdminError(w, http.StatusBadRequest, fmt.Sprintf("base_url is required for %s endpoints", providerType))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	endpoint := &domain.Endpoint{
		ID:           uuid.New().String(),
		Name:         req.Name,
		ProviderType: providerType,
		BaseURL:      req.BaseURL,
		Credential:   req.Credential,
		Enabled:      enabled,
		OwnerID:      req.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.endpoints.Create(ctx, endpoint); err != nil {
		slog.Error("failed to create endpoint", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	h.registry.InvalidateCatalog(ctx)
	slog.Info("endpoint created", "endpoint_id", endpoint.ID, "name", endpoint.Name, "provider_type", endpoint.ProviderType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(maskedEndpoint(endpoint))
}

func (h *AdminHandler) getEndpoint(w http.ResponseWriter, r *http.Request) {
	endpoint, err := h.endpoints.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(maskedEndpoint(endpoint))
}

type UpdateEndpointRequest struct {
	Name       *string `json:"name,omitempty"`
	BaseURL    *string `json:"base_url,omitempty"`
	Credential *string `json:"credential,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

func (h *AdminHandler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	endpoint, err := h.endpoints.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	var req UpdateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		endpoint.Name = *req.Name
	}
	if req.BaseURL != nil {
		endpoint.BaseURL = *req.BaseURL
	}
	if req.Credential != nil {
		endpoint.Credential = *req.Credential
	}
	if req.Enabled != nil {
		endpoint.Enabled = *req.Enabled
	}
	endpoint.UpdatedAt = time.Now()

	if endpoint.ProviderType.RequiresBaseURL() && endpoint.BaseURL == "" {
		writeAdminError(w, http.StatusBadRequest, fmt.Sprintf("base_url is required for %s endpoints", endpoint.ProviderType))
		return
	}

	if err := h.endpoints.Update(ctx, endpoint); err != nil {
		slog.Error("failed to update endpoint", "error", err, "endpoint_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	h.registry.InvalidateCatalog(ctx)
	slog.Info("endpoint updated", "endpoint_id", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(maskedEndpoint(endpoint))
}

func (h *AdminHandler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.endpoints.Delete(ctx, id); err != nil {
		writeAdminError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	h.registry.InvalidateCatalog(ctx)
	slog.Info("endpoint deleted", "endpoint_id", id)

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listEndpointModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := h.endpoints.GetByID(ctx, id); err != nil {
		writeAdminError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	models, err := h.models.ListByEndpoint(ctx, id)
	if err != nil {
		slog.Error("failed to list models", "error", err, "endpoint_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"models": models,
		"count":  len(models),
	})
}

func (h *AdminHandler) syncModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	result, err := h.syncer.SyncModels(ctx, id)
	if err != nil {
		var upstreamErr *domain.UpstreamError
		switch {
		case errors.Is(err, domain.ErrEndpointNotFound):
			writeAdminError(w, http.StatusNotFound, "endpoint not found")
		case errors.Is(err, domain.ErrUnexpectedShape):
			writeAdminError(w, http.StatusBadGateway, err.Error())
		case errors.As(err, &upstreamErr):
			writeAdminError(w, http.StatusBadGateway, fmt.Sprintf("provider returned HTTP %d: %s", upstreamErr.Status, upstreamErr.Message))
		default:
			slog.Error("model sync failed", "error", err, "endpoint_id", id)
			writeAdminError(w, http.StatusInternalServerError, "model sync failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      fmt.Sprintf("synced %d models, %d new", result.ModelsFound, result.NewModels),
		"models_found": result.ModelsFound,
		"new_models":   result.NewModels,
	})
}

type TestConnectionRequest struct {
	ProviderType string `json:"provider_type"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
}

func (h *AdminHandler) testConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderType == "" {
		writeAdminError(w, http.StatusBadRequest, "provider_type is required")
		return
	}

	result := h.tester.TestConnection(r.Context(), domain.ProviderType(req.ProviderType), req.APIKey, req.BaseURL)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type UpdateModelRequest struct {
	ModelName *string `json:"model_name,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

func (h *AdminHandler) updateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	model, err := h.models.GetByID(ctx, id)
	if err != nil {
		writeAdminError(w, http.StatusNotFound, "model not found")
		return
	}

	var req UpdateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ModelName != nil {
		model.ModelName = *req.ModelName
	}
	if req.Enabled != nil {
		model.Enabled = *req.Enabled
	}
	model.UpdatedAt = time.Now()

	if err := h.models.Update(ctx, model); err != nil {
		slog.Error("failed to update model", "error", err, "model_id", id)
		writeAdminError(w, http.StatusInternalServerError, "failed to update model")
		return
	}

	h.registry.InvalidateCatalog(ctx)
	slog.Info("model updated", "model_id", id, "enabled", model.Enabled)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model)
}

func (h *AdminHandler) deleteModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.models.Delete(ctx, id); err != nil {
		writeAdminError(w, http.StatusNotFound, "model not found")
		return
	}

	h.registry.InvalidateCatalog(ctx)
	slog.Info("model deleted", "model_id", id)

	w.WriteHeader(http.StatusNoContent)
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
