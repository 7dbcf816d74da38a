package shopify

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// DeliveryIDHeader identifies one webhook delivery attempt. Shopify reuses it
// on redelivery, which makes it a natural dedup key.
const DeliveryIDHeader = "X-Shopify-Webhook-Id"

// DeliveryCache remembers recently processed webhook delivery ids in Redis so
// redelivered webhooks can be acknowledged without reprocessing. It is an
// optimization only: issuance is idempotent at the store level, so a cache
// miss (or an unavailable Redis) never threatens correctness.
type DeliveryCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewDeliveryCache(client *redis.Client, ttl time.Duration) *DeliveryCache {
	return &DeliveryCache{Client: client, TTL: ttl}
}

// MarkSeen records the delivery id and reports whether it was already present.
// Errors are returned so the caller can fall through to normal processing.
func (c *DeliveryCache) MarkSeen(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, nil
	}
	key := "webhook_delivery:" + deliveryID
	created, err := c.Client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.TTL).Result()
	if err != nil {
		return false, err
	}
	return !created, nil
}

// Forget drops a delivery id so a platform retry is processed again. Callers
// use it when processing fails after the id was marked; only a fully processed
// delivery may stay remembered.
func (c *DeliveryCache) Forget(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	return c.Client.Del(ctx, "webhook_delivery:"+deliveryID).Err()
}
