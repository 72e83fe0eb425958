// Package configbus is the pub/sub fan-out that propagates config changes
// to every replica without a restart. Grounded on the same
// redis/go-redis/v9 client used by internal/quota; publishing and
// subscribing share one connection pool in practice, but the two concerns
// are kept in separate packages because QuotaStore is hot-path and
// ConfigBus is not.
package configbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel name config changes are broadcast on.
const Channel = "middleware:config:updated"

// Notice is the payload published whenever SystemConfig changes.
type Notice struct {
	Changed []string  `json:"changed"`
	Ts      time.Time `json:"ts"`
}

// Bus wraps a *redis.Client with publish/subscribe helpers scoped to
// Channel.
type Bus struct {
	client *redis.Client
}

// New wraps an already-constructed client.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish broadcasts a config-changed notice naming the keys that changed.
// Delivery is best-effort: subscribers that are down or lagging miss it and
// nothing re-sends it. A replica's runtime config is re-read only when a
// notice arrives or after that replica's own POST /admin/config; there is
// no periodic or TTL-based reconcile.
func (b *Bus) Publish(ctx context.Context, changed []string) error {
	notice := Notice{Changed: changed, Ts: time.Now().UTC()}
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal config notice: %w", err)
	}
	if err := b.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish config notice: %w", err)
	}
	return nil
}

// Subscribe starts listening on Channel and invokes onNotice for every
// message received until ctx is cancelled. Decode failures are skipped
// rather than killing the subscription, since a malformed notice should
// never stop a replica from noticing future ones.
func (b *Bus) Subscribe(ctx context.Context, onNotice func(Notice)) error {
	sub := b.client.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var notice Notice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				continue
			}
			onNotice(notice)
		}
	}
}
