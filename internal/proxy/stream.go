package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/usage"
)

// streamChunkSize is the read buffer size for each pass over the upstream
// body, matching proxy_request.go's chunk-by-chunk flushing loop.
const streamChunkSize = 4096

// streamResponse forwards resp.Body to the client verbatim, flushing after
// every chunk so end-user latency is never penalized by usage inspection.
// In parallel it decodes the same bytes into a rolling text buffer and
// splits on the SSE "\n\n" event separator to sniff for usage objects.
// Parse and decode failures are swallowed: a stream must never be aborted
// because an event could not be understood.
func (h *Handler) streamResponse(c *gin.Context, resp *http.Response, identifier, requestModel string) {
	flusher, canFlush := c.Writer.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	var rolling strings.Builder

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, writeErr := c.Writer.Write(chunk); writeErr != nil {
				obslog.Global().Warn("client disconnected mid-stream for %s: %v", c.Request.URL.Path, writeErr)
				return
			}
			if canFlush {
				flusher.Flush()
			}

			rolling.Write(chunk)
			h.drainSSEEvents(c.Request.Context(), &rolling, identifier, requestModel)
		}

		if readErr != nil {
			if readErr != io.EOF {
				obslog.Global().Warn("upstream stream read error for %s: %v", c.Request.URL.Path, readErr)
			}
			return
		}
	}
}

// drainSSEEvents splits the rolling buffer on the SSE double-newline event
// separator, processing every complete event and leaving any trailing
// partial event in the buffer for the next chunk.
func (h *Handler) drainSSEEvents(ctx context.Context, rolling *strings.Builder, identifier, requestModel string) {
	text := rolling.String()
	events := strings.Split(text, "\n\n")
	if len(events) <= 1 {
		return
	}

	complete, remainder := events[:len(events)-1], events[len(events)-1]
	for _, event := range complete {
		h.handleSSEEvent(ctx, event, identifier, requestModel)
	}

	rolling.Reset()
	rolling.WriteString(remainder)
}

func (h *Handler) handleSSEEvent(ctx context.Context, event, identifier, requestModel string) {
	const dataPrefix = "data: "

	var payload string
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, dataPrefix) {
			payload = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
			break
		}
	}
	if payload == "" || payload == "[DONE]" {
		return
	}

	ev := usage.Extract([]byte(payload), requestModel)
	if !ev.Found {
		return
	}
	if identifier == "" {
		return
	}
	h.enqueueUsage(ctx, identifier, ev)
}
