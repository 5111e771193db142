// Package google builds requests for the Gemini generateContent API.
package google

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

func (a *Adapter) BuildChatRequest(endpoint *domain.Endpoint, model string, messages []domain.Message, stream bool) (*provider.Request, error) {
	if endpoint.Credential == "" {
		return nil, fmt.Errorf("endpoint %s: %w", endpoint.ID, domain.ErrMissingCredential)
	}

	// The catalog may hold identifiers in either "gemini-x" or
	// "models/gemini-x" form.
	model = strings.TrimPrefix(model, "models/")

	req := generateRequest{}
	for _, message := range messages {
		switch message.Role {
		case domain.RoleSystem:
			// Gemini has a dedicated system channel; system content must
			// never be smuggled in as a user turn.
			req.SystemInstruction = &content{Parts: []part{{Text: message.Content}}}
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, content{Role: "model", Parts: []part{{Text: message.Content}}})
		default:
			req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: message.Content}}})
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	action := "generateContent"
	if stream {
		action = "streamGenerateContent"
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &provider.Request{
		URL: fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s",
			a.baseURL(endpoint), model, action, url.QueryEscape(endpoint.Credential)),
		Method: http.MethodPost,
		Header: header,
		Body:   body,
	}, nil
}

func (a *Adapter) ModelListingRequest(endpoint *domain.Endpoint) (*provider.Request, bool, error) {
	if endpoint.Credential == "" {
		return nil, false, fmt.Errorf("endpoint %s: %w", endpoint.ID, domain.ErrMissingCredential)
	}

	return &provider.Request{
		URL:    fmt.Sprintf("%s/v1beta/models?key=%s", a.baseURL(endpoint), url.QueryEscape(endpoint.Credential)),
		Method: http.MethodGet,
		Header: http.Header{},
	}, true, nil
}

func (a *Adapter) baseURL(endpoint *domain.Endpoint) string {
	base := strings.TrimRight(endpoint.BaseURL, "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}
