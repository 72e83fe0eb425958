// Package usage extracts token-usage figures from both buffered JSON
// response bodies and individual SSE events, and computes the token total
// and cost the proxy attributes to a request. Grounded on
// routes/completions.go's OpenAIExtractor shape (parse a usage object off a
// completion payload), narrowed to the two fields this gateway actually
// bills on and dropping the decompression step the upstream never needs
// here since the gateway never forwards a client Accept-Encoding header.
package usage

import "encoding/json"

// Event is the token-usage figures extracted from one completion response
// or SSE event, ready to enqueue as a models.UsageEvent once the caller
// attaches user_id and a timestamp.
type Event struct {
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Cost             float64
	Found            bool
}

// usagePayload mirrors the subset of an OpenRouter completion body or SSE
// event this gateway reads; any other field is ignored rather than
// rejected.
type usagePayload struct {
	Model string `json:"model"`
	Usage *struct {
		PromptTokens     int64    `json:"prompt_tokens"`
		CompletionTokens int64    `json:"completion_tokens"`
		TotalTokens      int64    `json:"total_tokens"`
		Cost             *float64 `json:"cost"`
		TotalCost        *float64 `json:"total_cost"`
	} `json:"usage"`
}

// Extract parses raw as a JSON object and pulls out usage figures, falling
// back to requestModel when the payload carries no model field. It returns
// Found=false (never an error) on any parse failure or missing usage
// object, since the proxy must never fail a response because usage
// extraction could not make sense of it.
func Extract(raw []byte, requestModel string) Event {
	var p usagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Usage == nil {
		return Event{}
	}

	model := p.Model
	if model == "" {
		model = requestModel
	}

	total := p.Usage.TotalTokens
	if total == 0 {
		total = p.Usage.PromptTokens + p.Usage.CompletionTokens
	}

	var cost float64
	switch {
	case p.Usage.Cost != nil:
		cost = *p.Usage.Cost
	case p.Usage.TotalCost != nil:
		cost = *p.Usage.TotalCost
	}

	return Event{
		Model:            model,
		PromptTokens:     p.Usage.PromptTokens,
		CompletionTokens: p.Usage.CompletionTokens,
		TotalTokens:      total,
		Cost:             cost,
		Found:            true,
	}
}
