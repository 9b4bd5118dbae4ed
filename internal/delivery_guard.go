package internal

import (
	"context"
	"fmt"
	"paybox/config"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryGuard marks applied notifications in redis, keyed by order,
// payment and result.
type DeliveryGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeliveryGuard(rdb *redis.Client, ttl time.Duration) *DeliveryGuard {
	return &DeliveryGuard{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects to the configured redis server.
func NewRedisClient(conf *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", conf.Redis.Addr, err)
	}
	return rdb, nil
}

func (g *DeliveryGuard) Key(orderId, paymentId, result string) string {
	return fmt.Sprintf("itn:%s:%s:%s", orderId, paymentId, result)
}

func (g *DeliveryGuard) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}
