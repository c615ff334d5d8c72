package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string, db int) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return r.WithTimeout(2 * time.Second)
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
