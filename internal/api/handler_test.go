package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/httputil"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/provider/openaicompat"
	"github.com/qandu/ai-relay/internal/ratelimit"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/relay"
	"github.com/qandu/ai-relay/internal/repository"
)

type fixture struct {
	handler   *Handler
	endpoints *repository.InMemoryEndpointRepository
	models    *repository.InMemoryModelRepository
	registry  *registry.Registry
}

func newFixture(t *testing.T, rateLimitRPM int) *fixture {
	t.Helper()

	endpointRepo := repository.NewInMemoryEndpointRepository()
	modelRepo := repository.NewInMemoryModelRepository()
	reg := registry.New(endpointRepo, modelRepo)
	adapters := provider.NewRegistry(openaicompat.New())
	engine := relay.New(reg, adapters, httputil.NewClient(httputil.StreamingConfig()), 10*time.Second)

	handler := NewHandler(HandlerConfig{
		Registry:     reg,
		Relay:        engine,
		RateLimiter:  ratelimit.NewInMemoryRateLimiter(),
		RateLimitRPM: rateLimitRPM,
	})

	return &fixture{
		handler:   handler,
		endpoints: endpointRepo,
		models:    modelRepo,
		registry:  reg,
	}
}

func (f *fixture) seedEndpoint(t *testing.T, endpoint *domain.Endpoint) {
	t.Helper()
	if err := f.endpoints.Create(context.Background(), endpoint); err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}
}

func generateBody(endpointID, modelID string, stream bool) *strings.Reader {
	body, _ := json.Marshal(domain.RelayRequest{
		Prompt:     "Hello",
		EndpointID: endpointID,
		ModelID:    modelID,
		Stream:     stream,
	})
	return strings.NewReader(string(body))
}

func TestGenerateText_Buffered(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer upstream.Close()

	f := newFixture(t, 60)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "local", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	req := httptest.NewRequest("POST", "/generate/text", generateBody("ep-1", "local-model", false))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"content":"hi"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", got)
	}
}

func TestGenerateText_Streaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"data: one\n\n", "data: two\n\n"} {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	f := newFixture(t, 60)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "local", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	req := httptest.NewRequest("POST", "/generate/text", generateBody("ep-1", "local-model", true))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := rr.Body.String(); got != "data: one\n\ndata: two\n\n" {
		t.Errorf("body = %q", got)
	}
}

func TestGenerateText_UpstreamDeathBreaksClientStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: partial\n\n"))
		flusher.Flush()

		// Kill the connection without a terminal chunk.
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer upstream.Close()

	f := newFixture(t, 60)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "local", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	front := httptest.NewServer(f.handler)
	defer front.Close()

	resp, err := http.Post(front.URL+"/generate/text", "application/json",
		generateBody("ep-1", "local-model", true))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr == nil {
		t.Fatalf("read completed cleanly with body %q; a dead upstream must break the client stream", body)
	}
	if !strings.Contains(string(body), "data: partial") {
		t.Errorf("chunks sent before the failure were lost: %q", body)
	}
}

func TestGenerateText_Validation(t *testing.T) {
	f := newFixture(t, 60)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing prompt", `{"endpointId":"ep-1","modelId":"m"}`},
		{"missing endpoint", `{"prompt":"hi","modelId":"m"}`},
		{"missing model", `{"prompt":"hi","endpointId":"ep-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/generate/text", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			f.handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGenerateText_ErrorStatusMapping(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, 60)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "disabled", Name: "off", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: false,
	})
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "failing", Name: "failing", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	tests := []struct {
		name       string
		endpointID string
		wantStatus int
	}{
		{"unknown endpoint", "ghost", http.StatusNotFound},
		{"disabled endpoint", "disabled", http.StatusForbidden},
		{"upstream failure", "failing", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/generate/text", generateBody(tt.endpointID, "m", false))
			rr := httptest.NewRecorder()
			f.handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestGenerateText_UpstreamErrorPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer upstream.Close()

	f := newFixture(t, 60)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "local", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	req := httptest.NewRequest("POST", "/generate/text", generateBody("ep-1", "m", false))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	var payload struct {
		Error struct {
			Message        string `json:"message"`
			UpstreamStatus int    `json:"upstream_status"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Message != "invalid api key" {
		t.Errorf("message = %q", payload.Error.Message)
	}
	if payload.Error.UpstreamStatus != http.StatusUnauthorized {
		t.Errorf("upstream_status = %d, want 401", payload.Error.UpstreamStatus)
	}
}

func TestGenerateText_RateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	f := newFixture(t, 1)
	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "local", ProviderType: domain.ProviderCustom,
		BaseURL: upstream.URL, Enabled: true,
	})

	first := httptest.NewRecorder()
	f.handler.ServeHTTP(first, httptest.NewRequest("POST", "/generate/text", generateBody("ep-1", "m", false)))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	f.handler.ServeHTTP(second, httptest.NewRequest("POST", "/generate/text", generateBody("ep-1", "m", false)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("missing X-RateLimit-Reset header")
	}
}

func TestListModels(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()

	f.seedEndpoint(t, &domain.Endpoint{
		ID: "ep-1", Name: "prod", ProviderType: domain.ProviderOpenAI,
		BaseURL: "https://api.openai.com/v1", Enabled: true,
	})
	f.models.InsertIfAbsent(ctx, []*domain.Model{
		{ID: "m-1", EndpointID: "ep-1", ModelID: "gpt-4o", ModelName: "GPT-4o", Enabled: true},
		{ID: "m-2", EndpointID: "ep-1", ModelID: "hidden", Enabled: false},
	})

	req := httptest.NewRequest("GET", "/models", nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var payload struct {
		Models []domain.SelectableModel `json:"models"`
		Count  int                      `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Count != 1 || len(payload.Models) != 1 {
		t.Fatalf("payload = %+v, want the single enabled model", payload)
	}
	m := payload.Models[0]
	if m.ModelID != "gpt-4o" || m.DisplayName != "GPT-4o" || m.EndpointName != "prod" {
		t.Errorf("model = %+v", m)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, 60)

	for _, path := range []string{"/health", "/health/live"} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, rr.Code)
		}
	}
}
