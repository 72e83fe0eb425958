// Package quota implements the QuotaStore: atomic per-user token counters
// and the two durable list queues that decouple the hot path from
// AuditStore latency. Grounded on
// HabrielStark-invariant/pkg/store/redis.go's client construction and
// pkg/ratelimit/redis.go's INCR+PEXPIRE Lua-script idiom, generalized from
// a single rate-limit counter to the daily/monthly counter pair this
// gateway needs.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MinCounterTTL is the minimum time-to-live applied to a freshly touched
// counter: at least 40 days, so a counter never expires mid-billing-cycle.
const MinCounterTTL = 40 * 24 * time.Hour

const (
	usageQueueKey   = "usage_queue"
	requestPerfKey  = "request_perf_queue"
	drainBatchLimit = 100
)

// incrementScript atomically bumps a counter and ensures its TTL is at
// least the given number of milliseconds, without clobbering a longer TTL
// already in place (mirrors the INCR-then-conditional-PEXPIRE shape of
// pkg/ratelimit/redis.go's rate limit script).
var incrementScript = redis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 or ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return current
`)

// Store wraps a *redis.Client with the counter and queue operations the
// quota engine and usage pipeline need.
type Store struct {
	Client *redis.Client
}

// Open connects to Redis at url (a redis:// URL) and verifies reachability.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping quota store: %w", err)
	}
	return &Store{Client: client}, nil
}

// New wraps an already-constructed client, used by tests against miniredis.
func New(client *redis.Client) *Store {
	return &Store{Client: client}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.Client.Close()
}

func dailyKey(userID string, at time.Time) string {
	return fmt.Sprintf("usage:user:%s:daily:%s", userID, at.UTC().Format("2006-01-02"))
}

func monthlyKey(userID string, at time.Time) string {
	return fmt.Sprintf("usage:user:%s:monthly:%s", userID, at.UTC().Format("2006-01"))
}

// IncrementCounters bumps both the daily and monthly counters for userID by
// delta tokens, refreshing their TTLs to at least MinCounterTTL.
func (s *Store) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	ttlMs := MinCounterTTL.Milliseconds()
	if _, err := incrementScript.Run(ctx, s.Client, []string{dailyKey(userID, at)}, delta, ttlMs).Result(); err != nil {
		return fmt.Errorf("increment daily counter for %s: %w", userID, err)
	}
	if _, err := incrementScript.Run(ctx, s.Client, []string{monthlyKey(userID, at)}, delta, ttlMs).Result(); err != nil {
		return fmt.Errorf("increment monthly counter for %s: %w", userID, err)
	}
	return nil
}

// ReadCounters atomically reads both the daily and monthly counters for
// userID via a single multi-get, returning zero for any key that has never
// been touched.
func (s *Store) ReadCounters(ctx context.Context, userID string, at time.Time) (daily, monthly int64, err error) {
	vals, err := s.Client.MGet(ctx, dailyKey(userID, at), monthlyKey(userID, at)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read counters for %s: %w", userID, err)
	}
	daily = parseCounterValue(vals[0])
	monthly = parseCounterValue(vals[1])
	return daily, monthly, nil
}

func parseCounterValue(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0
	}
	return n
}

// PushUsageEvent appends a payload onto the durable usage_queue.
func (s *Store) PushUsageEvent(ctx context.Context, payload []byte) error {
	if err := s.Client.LPush(ctx, usageQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("push usage event: %w", err)
	}
	return nil
}

// PushRequestPerfEvent appends a payload onto the durable
// request_perf_queue.
func (s *Store) PushRequestPerfEvent(ctx context.Context, payload []byte) error {
	if err := s.Client.LPush(ctx, requestPerfKey, payload).Err(); err != nil {
		return fmt.Errorf("push request perf event: %w", err)
	}
	return nil
}

// DrainUsageEvents right-pops up to drainBatchLimit payloads from
// usage_queue, matching the workers' FIFO left-push/right-pop contract.
func (s *Store) DrainUsageEvents(ctx context.Context) ([][]byte, error) {
	return drainList(ctx, s.Client, usageQueueKey)
}

// DrainRequestPerfEvents right-pops up to drainBatchLimit payloads from
// request_perf_queue.
func (s *Store) DrainRequestPerfEvents(ctx context.Context) ([][]byte, error) {
	return drainList(ctx, s.Client, requestPerfKey)
}

func drainList(ctx context.Context, client *redis.Client, key string) ([][]byte, error) {
	var out [][]byte
	for i := 0; i < drainBatchLimit; i++ {
		val, err := client.RPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return out, fmt.Errorf("drain %s: %w", key, err)
		}
		out = append(out, []byte(val))
	}
	return out, nil
}

// QueueDepth reports the current length of a named queue, used by
// /admin/health.
func (s *Store) QueueDepth(ctx context.Context, key string) (int64, error) {
	n, err := s.Client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth %s: %w", key, err)
	}
	return n, nil
}

// UsageQueueKey and RequestPerfQueueKey expose the queue names to callers
// outside the package that report queue depth.
const (
	UsageQueueKey      = usageQueueKey
	RequestPerfQueueKey = requestPerfKey
)

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}
