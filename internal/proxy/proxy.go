// Package proxy implements ProxyPipeline: the gin handler that composes
// identity resolution, policy admission, header hygiene, upstream
// dispatch, and usage extraction for every request under /v1/*. Grounded
// on gateway/routes/proxy/proxy_request.go's prepare-then-dispatch shape
// and its chunk-by-chunk streaming write loop, generalized from a
// multi-provider model registry to a single OpenRouter upstream plus a
// policy/quota gate in front of it.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/gwerrors"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/identity"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/metrics"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/pipeline"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/policy"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/usage"
)

// DefaultUpstreamBase is the base URL every path after /v1/ is appended to.
const DefaultUpstreamBase = "https://openrouter.ai/api"

// UserEnsurer lazily auto-provisions a user row on first sighting.
type UserEnsurer interface {
	EnsureUser(id string) error
}

// Checker evaluates policy admission for a resolved identity.
type Checker interface {
	CheckAccess(ctx context.Context, userID string) (policy.Decision, error)
}

// Handler implements ProxyPipeline as a gin.HandlerFunc-producing type.
type Handler struct {
	UpstreamBase string
	HTTPClient   *http.Client
	Runtime      *config.Runtime
	Users        UserEnsurer
	Access       Checker
	Pipeline     *pipeline.Pipeline
}

// New constructs a Handler wired to its runtime config and backing
// services. HTTPClient defaults to http.DefaultClient equivalent settings
// with no timeout override, matching upstream streaming responses that can
// run long.
func New(runtime *config.Runtime, users UserEnsurer, access Checker, p *pipeline.Pipeline) *Handler {
	return &Handler{
		UpstreamBase: DefaultUpstreamBase,
		HTTPClient:   &http.Client{},
		Runtime:      runtime,
		Users:        users,
		Access:       access,
		Pipeline:     p,
	}
}

// ServeHTTP is the gin entrypoint mounted at ANY /v1/*path.
func (h *Handler) ServeHTTP(c *gin.Context) {
	started := time.Now().UTC()

	apiKey, _ := h.Runtime.Get("OPENROUTER_API_KEY")
	if strings.TrimSpace(apiKey) == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrConfigMissing)})
		h.recordRequestLog(c, "", "", http.StatusInternalServerError, false, started)
		return
	}

	upstreamPath := strings.TrimPrefix(c.Request.URL.Path, "/v1")

	// Fast path: GET /v1/models bypasses identity, policy, and usage but
	// still records a RequestLog.
	if c.Request.Method == http.MethodGet && upstreamPath == "/models" {
		h.forwardRaw(c, upstreamPath, apiKey, "", started)
		return
	}

	identifier, hasIdentity := identity.Resolve(c.Request.Header)
	if hasIdentity {
		if err := h.Users.EnsureUser(identifier); err != nil {
			obslog.Global().Error("ensure user %s: %v", identifier, err)
		}
	}

	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	isWrite := c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead
	contentType := c.Request.Header.Get("Content-Type")
	isJSON := strings.Contains(contentType, "application/json")

	requestModel := "unknown"
	var outboundBody []byte = bodyBytes

	if isWrite && isJSON && len(bodyBytes) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(bodyBytes, &parsed); err == nil {
			if m, ok := parsed["model"].(string); ok && m != "" {
				requestModel = m
			}

			if hasIdentity {
				decision, err := h.Access.CheckAccess(c.Request.Context(), identifier)
				if err != nil {
					reason := gwerrors.Reason(err)
					metrics.ProxyDeniedTotal.WithLabelValues(reason).Inc()
					c.JSON(http.StatusForbidden, gin.H{"error": reason})
					h.recordRequestLog(c, identifier, requestModel, http.StatusForbidden, false, started)
					return
				}
				_ = decision
			}

			if hasIdentity {
				parsed["user"] = identifier
				if reserialized, err := json.Marshal(parsed); err == nil {
					outboundBody = reserialized
				}
			}
		}
	}

	referer, _ := h.Runtime.Get("OPENROUTER_HTTP_REFERER")
	title, _ := h.Runtime.Get("OPENROUTER_X_TITLE")

	upstreamReq, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, h.UpstreamBase+"/v1"+upstreamPath, bytes.NewReader(outboundBody))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		h.recordRequestLog(c, identifier, requestModel, http.StatusInternalServerError, false, started)
		return
	}
	upstreamReq.URL.RawQuery = c.Request.URL.RawQuery
	upstreamReq.Header = cleanForwardHeaders(c.Request.Header)
	upstreamReq.Header.Set("Authorization", "Bearer "+apiKey)
	if referer != "" {
		upstreamReq.Header.Set("HTTP-Referer", referer)
	}
	if title != "" {
		upstreamReq.Header.Set("X-Title", title)
	}
	if upstreamReq.Header.Get("User-Agent") == "" {
		upstreamReq.Header.Set("User-Agent", "openwebui-openrouter-gateway")
	}

	resp, err := h.HTTPClient.Do(upstreamReq)
	if err != nil {
		obslog.Global().Warn("upstream unavailable for %s: %v", upstreamPath, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": gwerrors.Reason(gwerrors.ErrUpstreamUnavailable)})
		h.recordRequestLog(c, identifier, requestModel, http.StatusBadGateway, false, started)
		return
	}
	defer resp.Body.Close()

	for k, vs := range cleanReturnHeaders(resp.Header) {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)

	if resp.StatusCode >= 400 {
		obslog.Global().Warn("upstream returned %d for %s", resp.StatusCode, upstreamPath)
	}

	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	if isStream {
		h.streamResponse(c, resp, identifier, requestModel)
		h.recordRequestLog(c, identifier, requestModel, resp.StatusCode, true, started)
		return
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		obslog.Global().Error("read upstream body: %v", err)
		h.recordRequestLog(c, identifier, requestModel, resp.StatusCode, false, started)
		return
	}
	if _, err := c.Writer.Write(respBody); err != nil {
		obslog.Global().Error("write response to client: %v", err)
	}

	if hasIdentity {
		if ev := usage.Extract(respBody, requestModel); ev.Found {
			h.enqueueUsage(c.Request.Context(), identifier, ev)
		}
	}

	h.recordRequestLog(c, identifier, requestModel, resp.StatusCode, false, started)
}

// forwardRaw handles the GET /v1/models fast path: forward verbatim, return
// cleaned headers and bytes, still record a RequestLog.
func (h *Handler) forwardRaw(c *gin.Context, upstreamPath, apiKey, identifier string, started time.Time) {
	referer, _ := h.Runtime.Get("OPENROUTER_HTTP_REFERER")
	title, _ := h.Runtime.Get("OPENROUTER_X_TITLE")

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, h.UpstreamBase+"/v1"+upstreamPath, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		h.recordRequestLog(c, identifier, "", http.StatusInternalServerError, false, started)
		return
	}
	req.URL.RawQuery = c.Request.URL.RawQuery
	req.Header = cleanForwardHeaders(c.Request.Header)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if referer != "" {
		req.Header.Set("HTTP-Referer", referer)
	}
	if title != "" {
		req.Header.Set("X-Title", title)
	}

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": gwerrors.Reason(gwerrors.ErrUpstreamUnavailable)})
		h.recordRequestLog(c, identifier, "", http.StatusBadGateway, false, started)
		return
	}
	defer resp.Body.Close()

	for k, vs := range cleanReturnHeaders(resp.Header) {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	_, _ = c.Writer.Write(body)

	h.recordRequestLog(c, identifier, "", resp.StatusCode, false, started)
}

func (h *Handler) enqueueUsage(ctx context.Context, identifier string, ev usage.Event) {
	if err := h.Pipeline.EnqueueUsage(ctx, identifier, ev.Model, ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens, ev.Cost); err != nil {
		obslog.Global().Error("enqueue usage for %s: %v", identifier, err)
	}
	metrics.UsageTokensTotal.WithLabelValues(ev.Model).Add(float64(ev.TotalTokens))
}

// recordRequestLog clamps latency to a non-negative duration and enqueues a
// RequestPerfEvent; every terminated request produces exactly one of these,
// including denied and upstream-errored ones.
func (h *Handler) recordRequestLog(c *gin.Context, identifier, model string, status int, isStream bool, started time.Time) {
	completed := time.Now().UTC()
	latency := completed.Sub(started).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	event := models.RequestPerfEvent{
		UserID:      identifier,
		Model:       model,
		Path:        c.Request.URL.Path,
		Method:      c.Request.Method,
		Status:      status,
		IsStream:    isStream,
		LatencyMs:   latency,
		StartedAt:   started,
		CompletedAt: completed,
	}
	h.Pipeline.EnqueueRequestLog(c.Request.Context(), event)

	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.Request.URL.Path, http.StatusText(status)).Inc()
	metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.URL.Path).Observe(time.Since(started).Seconds())
}
