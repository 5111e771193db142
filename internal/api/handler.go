// Package api exposes the relay over HTTP: one generation endpoint for
// clients, a model catalog listing, health probes and the admin surface.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/metrics"
	"github.com/qandu/ai-relay/internal/ratelimit"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/relay"
)

type HandlerConfig struct {
	Registry     *registry.Registry
	Relay        *relay.Engine
	RateLimiter  ratelimit.RateLimiter
	RateLimitRPM int

	HealthCheckers []HealthChecker
	HealthTimeout  time.Duration
}

type Handler struct {
	registry     *registry.Registry
	relay        *relay.Engine
	rateLimiter  ratelimit.RateLimiter
	rateLimitRPM int
	mux          *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	healthTimeout := cfg.HealthTimeout
	if healthTimeout == 0 {
		healthTimeout = 5 * time.Second
	}

	h := &Handler{
		registry:     cfg.Registry,
		relay:        cfg.Relay,
		rateLimiter:  cfg.RateLimiter,
		rateLimitRPM: cfg.RateLimitRPM,
		mux:          http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /generate/text", h.handleGenerateText)
	h.mux.HandleFunc("GET /models", h.handleListModels)
	h.mux.HandleFunc("GET /health", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.Handle("GET /health/ready", handleHealthReadyWithCheckers(cfg.HealthCheckers, healthTimeout))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleGenerateText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req domain.RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" || req.EndpointID == "" || req.ModelID == "" {
		writeError(w, http.StatusBadRequest, "prompt, endpointId and modelId are required")
		return
	}

	if h.rateLimiter != nil {
		allowed, remaining, resetAt, err := h.rateLimiter.Allow(ctx, req.EndpointID, h.rateLimitRPM)
		if err != nil {
			slog.Error("rate limiter error", "error", err, "request_id", requestID)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.rateLimitRPM))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if !allowed {
			slog.Warn("rate limit exceeded", "endpoint_id", req.EndpointID, "request_id", requestID)
			metrics.RecordRateLimitHit(req.EndpointID)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	start := time.Now()

	result, err := h.relay.Relay(ctx, req)
	if err != nil {
		slog.Warn("relay failed",
			"error", err,
			"request_id", requestID,
			"endpoint_id", req.EndpointID,
			"model", req.ModelID,
		)
		writeRelayError(w, err)
		return
	}

	if result.Streaming {
		h.writeStream(w, r, result, req, requestID, start)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Request-ID", requestID)
	w.Write(result.Body)

	slog.Info("request completed",
		"request_id", requestID,
		"endpoint_id", req.EndpointID,
		"model", req.ModelID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

// writeStream forwards upstream chunks to the client exactly as they
// arrived. Framing belongs to the provider; the relay adds nothing.
func (h *Handler) writeStream(w http.ResponseWriter, r *http.Request, result *relay.Result, req domain.RelayRequest, requestID string, start time.Time) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", requestID)

	chunks, errs := result.Chunks, result.Errs
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				// The pump reports a failure before closing the chunk
				// channel, so a pending error must win over the clean
				// completion path.
				if errs != nil {
					if err := <-errs; err != nil {
						h.abortStream(err, requestID)
					}
				}
				slog.Info("streaming request completed",
					"request_id", requestID,
					"endpoint_id", req.EndpointID,
					"model", req.ModelID,
					"latency_ms", time.Since(start).Milliseconds(),
				)
				return
			}
			w.Write(chunk)
			flusher.Flush()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				h.abortStream(err, requestID)
			}

		case <-ctx.Done():
			return
		}
	}
}

// abortStream tears down the client connection mid-response. Headers are
// gone by the time a stream fails, so the only honest signal left is a
// broken connection: the client must never mistake a dead upstream for a
// completed stream.
func (h *Handler) abortStream(err error, requestID string) {
	slog.Error("streaming error", "error", err, "request_id", requestID)
	panic(http.ErrAbortHandler)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.registry.ListEnabledCatalog(r.Context())
	if err != nil {
		slog.Error("catalog listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"models": catalog,
		"count":  len(catalog),
	})
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeRelayError maps the relay error taxonomy onto HTTP statuses. The
// upstream status is never echoed as our own; it travels in the payload.
func writeRelayError(w http.ResponseWriter, err error) {
	var upstreamErr *domain.UpstreamError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEndpointNotFound), errors.Is(err, domain.ErrModelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEndpointDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrMissingCredential), errors.Is(err, domain.ErrMissingBaseURL):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, domain.ErrUpstreamTimeout):
		writeError(w, http.StatusGatewayTimeout, "upstream provider timed out")
	case errors.As(err, &upstreamErr):
		writeUpstreamError(w, upstreamErr)
	case errors.Is(err, domain.ErrUnexpectedShape):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeUpstreamError(w http.ResponseWriter, upstreamErr *domain.UpstreamError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":         upstreamErr.Message,
			"type":            "upstream_error",
			"upstream_status": upstreamErr.Status,
		},
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
