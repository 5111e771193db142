package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/telemetry"
)

// Tester probes provider credentials before an endpoint is saved. It works
// on a transient endpoint value and never touches the store.
type Tester struct {
	adapters *provider.Registry
	client   *http.Client
	timeout  time.Duration
}

func NewTester(adapters *provider.Registry, client *http.Client, timeout time.Duration) *Tester {
	return &Tester{
		adapters: adapters,
		client:   client,
		timeout:  timeout,
	}
}

// TestResult is the outcome of a connection probe. Models carries the
// provider-native identifiers discovered on success, which lets admins
// preview what a sync would find.
type TestResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Models  []string `json:"models,omitempty"`
}

// TestConnection issues the provider's model-listing call with the given
// credentials. An HTTP 2xx is success even when the body yields no model
// identifiers: the credential worked, the listing shape is a separate
// concern. Providers without a listing endpoint pass trivially.
func (t *Tester) TestConnection(ctx context.Context, providerType domain.ProviderType, credential, baseURL string) *TestResult {
	ctx, span := telemetry.StartSpan(ctx, "catalog.test_connection")
	defer span.End()

	probe := &domain.Endpoint{
		ProviderType: providerType,
		Credential:   credential,
		BaseURL:      baseURL,
	}

	adapter := t.adapters.Lookup(providerType)
	listing, ok, err := adapter.ModelListingRequest(probe)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		return &TestResult{Success: false, Message: err.Error()}
	}
	if !ok {
		return &TestResult{
			Success: true,
			Message: fmt.Sprintf("%s endpoints do not expose a model listing; connection assumed valid", providerType),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, err := fetchListing(ctx, t.client, listing)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		return &TestResult{Success: false, Message: connectionFailureMessage(err)}
	}

	ids, recognized := provider.ExtractModelIDs(body)
	if !recognized {
		// The provider answered; we just cannot enumerate its models.
		return &TestResult{
			Success: true,
			Message: "connection succeeded; model listing format not recognized",
		}
	}

	return &TestResult{
		Success: true,
		Message: fmt.Sprintf("connection succeeded, %d models available", len(ids)),
		Models:  ids,
	}
}

func connectionFailureMessage(err error) string {
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		if upstreamErr.Status == http.StatusUnauthorized || upstreamErr.Status == http.StatusForbidden {
			return fmt.Sprintf("authentication failed (HTTP %d)", upstreamErr.Status)
		}
		return fmt.Sprintf("provider returned HTTP %d", upstreamErr.Status)
	}
	return err.Error()
}
