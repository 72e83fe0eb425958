// Package pipeline is the UsagePipeline: it enqueues token usage and
// request-performance events onto QuotaStore's durable lists on the hot
// path, and runs the background workers that drain those lists into the
// AuditStore. Grounded on the decoupled enqueue/drain split of
// shared/usage/worker_pool.go, adapted from an in-memory channel pool to
// the durable Redis-list queue this gateway's restart-survival requirement
// needs.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
)

// QueueStore is the subset of QuotaStore the pipeline needs to enqueue and
// drain events.
type QueueStore interface {
	IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error
	PushUsageEvent(ctx context.Context, payload []byte) error
	PushRequestPerfEvent(ctx context.Context, payload []byte) error
	DrainUsageEvents(ctx context.Context) ([][]byte, error)
	DrainRequestPerfEvents(ctx context.Context) ([][]byte, error)
}

// AuditWriter is the subset of the AuditStore the drain workers write into.
type AuditWriter interface {
	InsertUsageLog(e models.UsageEvent) error
	InsertRequestLog(e models.RequestPerfEvent) error
}

// Pipeline composes a QueueStore and an AuditWriter.
type Pipeline struct {
	Queue QueueStore
	Audit AuditWriter
}

// New constructs a Pipeline wired to its backing queue and audit store.
func New(queue QueueStore, audit AuditWriter) *Pipeline {
	return &Pipeline{Queue: queue, Audit: audit}
}

// EnqueueUsage increments both counters for userID by total and pushes a
// durable UsageEvent. total and cost are recorded as given; the fallbacks
// (total_tokens to prompt+completion, cost to total_cost to zero) are
// applied by usage.Extract before this is called.
func (p *Pipeline) EnqueueUsage(ctx context.Context, userID, model string, promptTokens, completionTokens, total int64, cost float64) error {
	at := time.Now().UTC()
	if err := p.Queue.IncrementCounters(ctx, userID, total, at); err != nil {
		obslog.Global().Error("quota increment failed for %s: %v", userID, err)
	}

	event := models.UsageEvent{
		UserID:           userID,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		TotalCost:        cost,
		Ts:               at,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		obslog.Global().Error("marshal usage event for %s: %v", userID, err)
		return nil
	}
	if err := p.Queue.PushUsageEvent(ctx, payload); err != nil {
		obslog.Global().Error("enqueue usage event for %s: %v", userID, err)
	}
	return nil
}

// EnqueueRequestLog pushes a durable RequestPerfEvent. Enqueue failures are
// logged and swallowed: they must never fail the client's response.
func (p *Pipeline) EnqueueRequestLog(ctx context.Context, e models.RequestPerfEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		obslog.Global().Error("marshal request log: %v", err)
		return
	}
	if err := p.Queue.PushRequestPerfEvent(ctx, payload); err != nil {
		obslog.Global().Error("enqueue request log: %v", err)
	}
}

// RunDrainLoop runs forever, draining up to 100 items from each queue per
// iteration and inserting them into the AuditStore. It never returns except
// when ctx is cancelled: any insert error is logged and the loop continues
// after a one-second backoff, since worker death is forbidden.
func (p *Pipeline) RunDrainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		didWork := p.drainOnce(ctx)
		if !didWork {
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
		}
	}
}

func (p *Pipeline) drainOnce(ctx context.Context) bool {
	didWork := false
	insertFailed := false

	usagePayloads, err := p.Queue.DrainUsageEvents(ctx)
	if err != nil {
		obslog.Global().Error("drain usage queue: %v", err)
		time.Sleep(1 * time.Second)
	}
	for _, raw := range usagePayloads {
		didWork = true
		var e models.UsageEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			obslog.Global().Error("unmarshal usage event: %v", err)
			continue
		}
		if err := p.Audit.InsertUsageLog(e); err != nil {
			obslog.Global().Error("insert usage log: %v", err)
			insertFailed = true
		}
	}

	perfPayloads, err := p.Queue.DrainRequestPerfEvents(ctx)
	if err != nil {
		obslog.Global().Error("drain request perf queue: %v", err)
		time.Sleep(1 * time.Second)
	}
	for _, raw := range perfPayloads {
		didWork = true
		var e models.RequestPerfEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			obslog.Global().Error("unmarshal request perf event: %v", err)
			continue
		}
		if err := p.Audit.InsertRequestLog(e); err != nil {
			obslog.Global().Error("insert request log: %v", err)
			insertFailed = true
		}
	}

	if insertFailed {
		time.Sleep(1 * time.Second)
	}
	return didWork
}
