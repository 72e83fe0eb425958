package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

type fakeQueue struct {
	mu              sync.Mutex
	counters        map[string]int64
	usageQueue      [][]byte
	requestPerfQueue [][]byte
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{counters: map[string]int64{}}
}

func (f *fakeQueue) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[userID] += delta
	return nil
}

func (f *fakeQueue) PushUsageEvent(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageQueue = append(f.usageQueue, payload)
	return nil
}

func (f *fakeQueue) PushRequestPerfEvent(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestPerfQueue = append(f.requestPerfQueue, payload)
	return nil
}

func (f *fakeQueue) DrainUsageEvents(ctx context.Context) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.usageQueue
	f.usageQueue = nil
	return out, nil
}

func (f *fakeQueue) DrainRequestPerfEvents(ctx context.Context) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.requestPerfQueue
	f.requestPerfQueue = nil
	return out, nil
}

type fakeAudit struct {
	mu           sync.Mutex
	usageLogs    []models.UsageEvent
	requestLogs  []models.RequestPerfEvent
	failNextInsert bool
}

func (f *fakeAudit) InsertUsageLog(e models.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextInsert {
		f.failNextInsert = false
		return errors.New("insert failed")
	}
	f.usageLogs = append(f.usageLogs, e)
	return nil
}

func (f *fakeAudit) InsertRequestLog(e models.RequestPerfEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestLogs = append(f.requestLogs, e)
	return nil
}

func TestEnqueueUsageIncrementsAndPushes(t *testing.T) {
	q := newFakeQueue()
	a := &fakeAudit{}
	p := New(q, a)

	if err := p.EnqueueUsage(context.Background(), "a@x.com", "m1", 3, 7, 10, 0.5); err != nil {
		t.Fatalf("enqueue usage: %v", err)
	}
	if q.counters["a@x.com"] != 10 {
		t.Fatalf("expected counter incremented by 10, got %d", q.counters["a@x.com"])
	}
	if len(q.usageQueue) != 1 {
		t.Fatalf("expected 1 queued usage event, got %d", len(q.usageQueue))
	}

	var decoded models.UsageEvent
	if err := json.Unmarshal(q.usageQueue[0], &decoded); err != nil {
		t.Fatalf("decode queued event: %v", err)
	}
	if decoded.TotalTokens != 10 || decoded.TotalCost != 0.5 {
		t.Fatalf("unexpected queued event: %+v", decoded)
	}
}

func TestDrainOnceInsertsIntoAuditStore(t *testing.T) {
	q := newFakeQueue()
	a := &fakeAudit{}
	p := New(q, a)

	_ = p.EnqueueUsage(context.Background(), "a@x.com", "m1", 1, 1, 2, 0)
	p.EnqueueRequestLog(context.Background(), models.RequestPerfEvent{UserID: "a@x.com", Path: "/v1/chat/completions", Status: 200})

	didWork := p.drainOnce(context.Background())
	if !didWork {
		t.Fatal("expected drainOnce to report work done")
	}
	if len(a.usageLogs) != 1 {
		t.Fatalf("expected 1 inserted usage log, got %d", len(a.usageLogs))
	}
	if len(a.requestLogs) != 1 {
		t.Fatalf("expected 1 inserted request log, got %d", len(a.requestLogs))
	}
}

func TestDrainOnceEmptyQueuesReportsNoWork(t *testing.T) {
	q := newFakeQueue()
	a := &fakeAudit{}
	p := New(q, a)
	if p.drainOnce(context.Background()) {
		t.Fatal("expected no work on empty queues")
	}
}

func TestDrainOnceContinuesAfterInsertFailure(t *testing.T) {
	q := newFakeQueue()
	a := &fakeAudit{failNextInsert: true}
	p := New(q, a)

	_ = p.EnqueueUsage(context.Background(), "a@x.com", "m1", 1, 1, 2, 0)
	_ = p.EnqueueUsage(context.Background(), "b@x.com", "m1", 1, 1, 2, 0)

	didWork := p.drainOnce(context.Background())
	if !didWork {
		t.Fatal("expected work done despite one failed insert")
	}
	if len(a.usageLogs) != 1 {
		t.Fatalf("expected exactly 1 successful insert after 1 failure, got %d", len(a.usageLogs))
	}
}

func TestRunDrainLoopStopsOnContextCancel(t *testing.T) {
	q := newFakeQueue()
	a := &fakeAudit{}
	p := New(q, a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunDrainLoop(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain loop did not stop after context cancel")
	}
}
