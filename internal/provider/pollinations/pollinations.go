// Package pollinations builds requests for the pollinations.ai free text
// API. It takes no credentials; requests are attributed via a referrer
// field instead.
package pollinations

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/provider"
)

const (
	generateURL = "https://text.pollinations.ai/openai"
	modelsURL   = "https://text.pollinations.ai/models"

	// Referrer identifies this application to the upstream service.
	Referrer = "QanduApp"
)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Referrer string           `json:"referrer"`
}

func (a *Adapter) BuildChatRequest(endpoint *domain.Endpoint, model string, messages []domain.Message, stream bool) (*provider.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Referrer: Referrer,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	return &provider.Request{
		URL:    generateURL,
		Method: http.MethodPost,
		Header: header,
		Body:   body,
	}, nil
}

func (a *Adapter) ModelListingRequest(endpoint *domain.Endpoint) (*provider.Request, bool, error) {
	return &provider.Request{
		URL:    modelsURL,
		Method: http.MethodGet,
		Header: http.Header{},
	}, true, nil
}
