package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReceipts keeps the most recent delivery per recipient so support
// tooling can answer "did they get a reply, and when" without touching
// Postgres. TTL-bounded and entirely optional.
type RedisReceipts struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReceipts(rdb *redis.Client, ttl time.Duration) *RedisReceipts {
	return &RedisReceipts{rdb: rdb, ttl: ttl}
}

type deliveredValue struct {
	MessageSID  string    `json:"messageSid"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func (c *RedisReceipts) StoreDelivered(ctx context.Context, recipient, messageSID string, deliveredAt time.Time) error {
	key := fmt.Sprintf("delivered:%s", recipient)
	val := deliveredValue{
		MessageSID:  messageSID,
		DeliveredAt: deliveredAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
