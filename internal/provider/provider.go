// Package provider translates the internal chat representation into each
// upstream provider family's wire format. Adapters are pure request
// builders; issuing the HTTP call and reading the response belong to the
// relay engine and the catalog synchronizer.
package provider

import (
	"net/http"

	"github.com/qandu/ai-relay/internal/domain"
)

// Request is a fully built upstream HTTP request: URL, method, headers and
// an encoded body. It carries no connection state.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// Adapter builds provider-native requests for one provider family.
type Adapter interface {
	// BuildChatRequest translates a normalized message sequence into the
	// provider's generation call. Messages arrive provider-agnostic; any
	// role renaming or system-channel extraction happens here.
	BuildChatRequest(endpoint *domain.Endpoint, model string, messages []domain.Message, stream bool) (*Request, error)

	// ModelListingRequest builds the provider's model-listing call. The
	// second return is false when the provider family has no listing
	// endpoint; callers treat that as a supported no-op.
	ModelListingRequest(endpoint *domain.Endpoint) (*Request, bool, error)
}

// Registry maps provider-type tags to adapters. Unregistered types fall
// back to the default adapter, so new OpenAI-compatible providers work
// without code changes.
type Registry struct {
	adapters map[domain.ProviderType]Adapter
	fallback Adapter
}

func NewRegistry(fallback Adapter) *Registry {
	return &Registry{
		adapters: make(map[domain.ProviderType]Adapter),
		fallback: fallback,
	}
}

func (r *Registry) Register(providerType domain.ProviderType, adapter Adapter) {
	r.adapters[providerType] = adapter
}

func (r *Registry) Lookup(providerType domain.ProviderType) Adapter {
	if adapter, ok := r.adapters[providerType]; ok {
		return adapter
	}
	return r.fallback
}

func (r *Registry) Types() []domain.ProviderType {
	types := make([]domain.ProviderType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
