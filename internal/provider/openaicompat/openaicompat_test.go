package openaicompat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/qandu/ai-relay/internal/domain"
)

func TestBuildChatRequest(t *testing.T) {
	adapter := New()
	endpoint := &domain.Endpoint{
		ID:           "ep-1",
		ProviderType: domain.ProviderOpenAI,
		BaseURL:      "https://api.openai.com/v1/",
		Credential:   "sk-test",
	}

	req, err := adapter.BuildChatRequest(endpoint, "gpt-4o", []domain.Message{
		{Role: domain.RoleUser, Content: "Hello"},
	}, true)
	if err != nil {
		t.Fatalf("BuildChatRequest: %v", err)
	}

	if req.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("URL = %q", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}

	var body chatRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Model != "gpt-4o" || !body.Stream || len(body.Messages) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestBuildChatRequest_MissingBaseURL(t *testing.T) {
	adapter := New()

	for _, providerType := range []domain.ProviderType{domain.ProviderOpenAI, domain.ProviderCustom} {
		endpoint := &domain.Endpoint{
			ID:           "ep-1",
			ProviderType: providerType,
			Credential:   "key",
		}
		_, err := adapter.BuildChatRequest(endpoint, "m", nil, false)
		if !errors.Is(err, domain.ErrMissingBaseURL) {
			t.Errorf("type %s: err = %v, want ErrMissingBaseURL", providerType, err)
		}
	}
}

func TestBuildChatRequest_AnthropicHeaders(t *testing.T) {
	adapter := New()
	endpoint := &domain.Endpoint{
		ID:           "ep-1",
		ProviderType: domain.ProviderAnthropic,
		Credential:   "sk-ant",
	}

	req, err := adapter.BuildChatRequest(endpoint, "claude-3-5-sonnet", nil, false)
	if err != nil {
		t.Fatalf("BuildChatRequest: %v", err)
	}

	if got := req.Header.Get("x-api-key"); got != "sk-ant" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != anthropicVersion {
		t.Errorf("anthropic-version = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want unset", got)
	}
	if !strings.HasPrefix(req.URL, "https://api.anthropic.com/v1") {
		t.Errorf("URL = %q, want anthropic default base", req.URL)
	}
}

func TestBuildChatRequest_MissingCredential(t *testing.T) {
	adapter := New()

	endpoint := &domain.Endpoint{
		ID:           "ep-1",
		ProviderType: domain.ProviderGroq,
	}
	if _, err := adapter.BuildChatRequest(endpoint, "m", nil, false); !errors.Is(err, domain.ErrMissingCredential) {
		t.Errorf("groq without credential: err = %v, want ErrMissingCredential", err)
	}

	// Custom endpoints may run without auth.
	custom := &domain.Endpoint{
		ID:           "ep-2",
		ProviderType: domain.ProviderCustom,
		BaseURL:      "http://localhost:11434/v1",
	}
	req, err := adapter.BuildChatRequest(custom, "m", nil, false)
	if err != nil {
		t.Fatalf("custom without credential: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want unset", got)
	}
}

func TestModelListingRequest(t *testing.T) {
	adapter := New()
	endpoint := &domain.Endpoint{
		ID:           "ep-1",
		ProviderType: domain.ProviderMistral,
		Credential:   "key",
	}

	req, ok, err := adapter.ModelListingRequest(endpoint)
	if err != nil {
		t.Fatalf("ModelListingRequest: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want listing support")
	}
	if req.URL != "https://api.mistral.ai/v1/models" {
		t.Errorf("URL = %q", req.URL)
	}
	if req.Method != "GET" {
		t.Errorf("Method = %q", req.Method)
	}
}
