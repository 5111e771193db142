// Package relay dispatches normalized chat requests to upstream providers
// and forwards the result. Once the upstream call succeeds the relay is a
// transparent pipe: chunks are forwarded in arrival order without reframing,
// and cancelling the caller's context tears down the upstream read loop.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/metrics"
	"github.com/qandu/ai-relay/internal/prompt"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/telemetry"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained
// for diagnostics.
const maxErrorBodyBytes = 4 << 10

// maxBufferedBodyBytes bounds a non-streaming upstream response.
const maxBufferedBodyBytes = 16 << 20

type Engine struct {
	registry *registry.Registry
	adapters *provider.Registry
	client   *http.Client
	timeout  time.Duration
}

// New builds a relay engine. The client should have no overall deadline so
// long streams are not cut short; timeout bounds non-streaming calls.
func New(reg *registry.Registry, adapters *provider.Registry, client *http.Client, timeout time.Duration) *Engine {
	return &Engine{
		registry: reg,
		adapters: adapters,
		client:   client,
		timeout:  timeout,
	}
}

// Result is the outcome of a successful dispatch. Exactly one of the two
// delivery modes is populated: Chunks/Errs when Streaming, Body otherwise.
type Result struct {
	Streaming   bool
	ContentType string
	Status      int
	Chunks      <-chan []byte
	Errs        <-chan error
	Body        []byte
}

// Relay resolves the endpoint, builds the provider request and issues the
// upstream call. There are no retries: a provider failure is surfaced
// immediately and the caller owns any resubmission policy.
func (e *Engine) Relay(ctx context.Context, req domain.RelayRequest) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay")
	defer span.End()

	start := time.Now()

	endpoint, err := e.registry.ResolveEndpoint(ctx, req.EndpointID)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordRelay(req.EndpointID, "", req.ModelID, "resolve_error", time.Since(start).Seconds())
		return nil, err
	}

	providerType := string(endpoint.ProviderType)
	telemetry.AddRelayAttributes(span, endpoint.ID, providerType, req.ModelID, "")
	telemetry.AddStreamingAttribute(span, req.Stream)

	adapter := e.adapters.Lookup(endpoint.ProviderType)
	messages := prompt.BuildMessages(req.SystemPrompt, req.ChatHistory, req.Prompt)

	built, err := adapter.BuildChatRequest(endpoint, req.ModelID, messages, req.Stream)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordRelay(endpoint.ID, providerType, req.ModelID, "config_error", time.Since(start).Seconds())
		return nil, err
	}

	if !req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.dispatch(ctx, built, req.Stream)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordUpstreamError(providerType, classifyError(err))
		metrics.RecordRelay(endpoint.ID, providerType, req.ModelID, classifyError(err), time.Since(start).Seconds())
		return nil, err
	}

	if req.Stream {
		chunks := make(chan []byte)
		errs := make(chan error, 1)
		metrics.IncrementActiveStreams()
		go e.pump(ctx, resp.Body, chunks, errs)

		metrics.RecordRelay(endpoint.ID, providerType, req.ModelID, "ok", time.Since(start).Seconds())
		return &Result{
			Streaming:   true,
			ContentType: resp.Header.Get("Content-Type"),
			Status:      resp.StatusCode,
			Chunks:      chunks,
			Errs:        errs,
		}, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBodyBytes))
	if err != nil {
		err = fmt.Errorf("read upstream body: %w", err)
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordRelay(endpoint.ID, providerType, req.ModelID, "read_error", time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordRelay(endpoint.ID, providerType, req.ModelID, "ok", time.Since(start).Seconds())
	return &Result{
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
		Body:        body,
	}, nil
}

// dispatch issues the built request and maps failures into the error
// taxonomy. A non-2xx reply becomes an UpstreamError carrying the original
// status and the best-effort extracted message.
func (e *Engine) dispatch(ctx context.Context, built *provider.Request, stream bool) (*http.Response, error) {
	var body io.Reader
	if len(built.Body) > 0 {
		body = bytes.NewReader(built.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, built.Method, built.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if built.Header != nil {
		httpReq.Header = built.Header.Clone()
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		return nil, &domain.UpstreamError{
			Status:  resp.StatusCode,
			Message: extractErrorMessage(raw),
		}
	}

	return resp, nil
}

// pump forwards raw upstream bytes to the chunk channel in arrival order.
// The context select makes caller disconnects tear the loop down; closing
// the body aborts the blocked Read on the upstream side.
func (e *Engine) pump(ctx context.Context, upstream io.ReadCloser, chunks chan<- []byte, errs chan<- error) {
	defer close(chunks)
	defer close(errs)
	defer upstream.Close()
	defer metrics.DecrementActiveStreams()

	buf := make([]byte, 32*1024)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errs <- fmt.Errorf("read upstream stream: %w", err)
			return
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}

func classifyError(err error) string {
	var upstreamErr *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	default:
		return "network_error"
	}
}

// extractErrorMessage digs a human-readable message out of an upstream
// error body. Providers commonly nest it as error.message; some return
// error as a bare string; everything else falls back to the raw text.
func extractErrorMessage(raw []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}

	return strings.TrimSpace(string(raw))
}
