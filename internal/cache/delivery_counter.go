package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const defaultDeliveryTTL = 24 * time.Hour

// DeliveryCounter counts how often the same queue payload has been delivered. Payloads are keyed
// by content hash because requeued AMQP messages carry no stable id.
type DeliveryCounter struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewDeliveryCounter(client *redisv9.Client, ttl time.Duration) *DeliveryCounter {
	if ttl <= 0 {
		ttl = defaultDeliveryTTL
	}
	return &DeliveryCounter{client: client, ttl: ttl}
}

// Incr records one more delivery of body and returns the total so far.
func (c *DeliveryCounter) Incr(ctx context.Context, body []byte) (int64, error) {
	key := c.deliveryKey(body)
	var incr *redisv9.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis count delivery failed: %w", err)
	}
	return incr.Val(), nil
}

// Reset forgets body once it has been handled.
func (c *DeliveryCounter) Reset(ctx context.Context, body []byte) error {
	if err := c.client.Del(ctx, c.deliveryKey(body)).Err(); err != nil {
		return fmt.Errorf("redis reset delivery count failed: %w", err)
	}
	return nil
}

func (c *DeliveryCounter) deliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("docproc:deliveries:%s", hex.EncodeToString(sum[:]))
}
