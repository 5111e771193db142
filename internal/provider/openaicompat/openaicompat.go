// Package openaicompat builds requests for every provider speaking the
// OpenAI chat-completions dialect: openai, mistral, groq, anthropic's
// compatibility surface, and custom self-hosted endpoints. It is the
// registry's fallback adapter, so unknown provider types land here too.
package openaicompat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/provider"
)

const anthropicVersion = "2023-06-01"

// Known hosted bases, used when an endpoint of that type carries no base URL.
var defaultBaseURLs = map[domain.ProviderType]string{
	domain.ProviderAnthropic: "https://api.anthropic.com/v1",
	domain.ProviderMistral:   "https://api.mistral.ai/v1",
	domain.ProviderGroq:      "https://api.groq.com/openai/v1",
}

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

func (a *Adapter) BuildChatRequest(endpoint *domain.Endpoint, model string, messages []domain.Message, stream bool) (*provider.Request, error) {
	base, err := a.baseURL(endpoint)
	if err != nil {
		return nil, err
	}

	header, err := a.headers(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return &provider.Request{
		URL:    base + "/chat/completions",
		Method: http.MethodPost,
		Header: header,
		Body:   body,
	}, nil
}

func (a *Adapter) ModelListingRequest(endpoint *domain.Endpoint) (*provider.Request, bool, error) {
	base, err := a.baseURL(endpoint)
	if err != nil {
		return nil, false, err
	}

	header, err := a.headers(endpoint)
	if err != nil {
		return nil, false, err
	}
	header.Del("Content-Type")

	return &provider.Request{
		URL:    base + "/models",
		Method: http.MethodGet,
		Header: header,
	}, true, nil
}

func (a *Adapter) baseURL(endpoint *domain.Endpoint) (string, error) {
	base := strings.TrimRight(endpoint.BaseURL, "/")
	if base == "" {
		base = defaultBaseURLs[endpoint.ProviderType]
	}
	if base == "" {
		return "", fmt.Errorf("endpoint %s (%s): %w", endpoint.ID, endpoint.ProviderType, domain.ErrMissingBaseURL)
	}
	return base, nil
}

func (a *Adapter) headers(endpoint *domain.Endpoint) (http.Header, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	if endpoint.ProviderType == domain.ProviderAnthropic {
		if endpoint.Credential == "" {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint.ID, domain.ErrMissingCredential)
		}
		header.Set("x-api-key", endpoint.Credential)
		header.Set("anthropic-version", anthropicVersion)
		return header, nil
	}

	if endpoint.Credential != "" {
		header.Set("Authorization", "Bearer "+endpoint.Credential)
		return header, nil
	}

	// Custom endpoints may legitimately run without auth; every hosted type
	// needs a key.
	if endpoint.ProviderType != domain.ProviderCustom {
		return nil, fmt.Errorf("endpoint %s (%s): %w", endpoint.ID, endpoint.ProviderType, domain.ErrMissingCredential)
	}

	return header, nil
}
