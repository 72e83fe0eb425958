package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client)
}

func TestIncrementAndReadCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)

	if err := s.IncrementCounters(ctx, "a@x.com", 10, now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	daily, monthly, err := s.ReadCounters(ctx, "a@x.com", now)
	if err != nil {
		t.Fatalf("read counters: %v", err)
	}
	if daily != 10 || monthly != 10 {
		t.Fatalf("expected daily=10 monthly=10, got daily=%d monthly=%d", daily, monthly)
	}

	if err := s.IncrementCounters(ctx, "a@x.com", 5, now); err != nil {
		t.Fatalf("second increment: %v", err)
	}
	daily, monthly, err = s.ReadCounters(ctx, "a@x.com", now)
	if err != nil {
		t.Fatalf("read counters after second increment: %v", err)
	}
	if daily != 15 || monthly != 15 {
		t.Fatalf("expected daily=15 monthly=15, got daily=%d monthly=%d", daily, monthly)
	}
}

func TestReadCountersUntouchedUserIsZero(t *testing.T) {
	s := newTestStore(t)
	daily, monthly, err := s.ReadCounters(context.Background(), "nobody@x.com", time.Now())
	if err != nil {
		t.Fatalf("read counters: %v", err)
	}
	if daily != 0 || monthly != 0 {
		t.Fatalf("expected zero counters for untouched user, got daily=%d monthly=%d", daily, monthly)
	}
}

func TestUsageQueueDrainIsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, payload := range []string{"first", "second", "third"} {
		if err := s.PushUsageEvent(ctx, []byte(payload)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	depth, err := s.QueueDepth(ctx, UsageQueueKey)
	if err != nil {
		t.Fatalf("queue depth: %v", err)
	}
	if depth != 3 {
		t.Fatalf("expected depth 3, got %d", depth)
	}

	drained, err := s.DrainUsageEvents(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(drained) != len(want) {
		t.Fatalf("expected %d drained events, got %d", len(want), len(drained))
	}
	for i, payload := range drained {
		if string(payload) != want[i] {
			t.Fatalf("expected drain order %v, got %q at index %d", want, string(payload), i)
		}
	}

	depth, err = s.QueueDepth(ctx, UsageQueueKey)
	if err != nil {
		t.Fatalf("queue depth after drain: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected empty queue after drain, got depth %d", depth)
	}
}

func TestDrainBatchLimitsToOneHundred(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < drainBatchLimit+10; i++ {
		if err := s.PushRequestPerfEvent(ctx, []byte("x")); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	drained, err := s.DrainRequestPerfEvents(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(drained) != drainBatchLimit {
		t.Fatalf("expected drain capped at %d, got %d", drainBatchLimit, len(drained))
	}

	remaining, err := s.QueueDepth(ctx, RequestPerfQueueKey)
	if err != nil {
		t.Fatalf("queue depth: %v", err)
	}
	if remaining != 10 {
		t.Fatalf("expected 10 remaining items, got %d", remaining)
	}
}
