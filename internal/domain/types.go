package domain

import "time"

// ProviderType identifies the wire protocol family an endpoint speaks.
type ProviderType string

const (
	ProviderOpenAI       ProviderType = "openai"
	ProviderGoogle       ProviderType = "google"
	ProviderAnthropic    ProviderType = "anthropic"
	ProviderMistral      ProviderType = "mistral"
	ProviderGroq         ProviderType = "groq"
	ProviderPollinations ProviderType = "pollinations"
	ProviderCustom       ProviderType = "custom"
)

// RequiresBaseURL reports whether endpoints of this type must carry a
// base URL before any request is attempted.
func (t ProviderType) RequiresBaseURL() bool {
	return t == ProviderOpenAI || t == ProviderCustom
}

type Endpoint struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ProviderType ProviderType `json:"provider_type"`
	BaseURL      string       `json:"base_url,omitempty"`
	Credential   string       `json:"-"`
	Enabled      bool         `json:"enabled"`
	OwnerID      string       `json:"owner_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type Model struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	ModelID    string    `json:"model_id"`
	ModelName  string    `json:"model_name"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName falls back to the provider-native model identifier when no
// custom name was set.
func (m Model) DisplayName() string {
	if m.ModelName != "" {
		return m.ModelName
	}
	return m.ModelID
}

// SelectableModel is the join of an enabled model with its enabled parent
// endpoint. It is computed per catalog fetch and never persisted.
type SelectableModel struct {
	ModelID      string       `json:"model_id"`
	DisplayName  string       `json:"display_name"`
	EndpointID   string       `json:"endpoint_id"`
	EndpointName string       `json:"endpoint_name"`
	ProviderType ProviderType `json:"provider_type"`
}

// Message is a single conversation turn. Role is one of "system", "user"
// or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RelayRequest carries one normalized generation request through the relay
// engine. History is oldest-first; the caller applies any truncation before
// the request reaches the engine.
type RelayRequest struct {
	Prompt       string    `json:"prompt"`
	EndpointID   string    `json:"endpointId"`
	ModelID      string    `json:"modelId"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	ChatHistory  []Message `json:"chatHistory,omitempty"`
	Stream       bool      `json:"stream,omitempty"`
}
