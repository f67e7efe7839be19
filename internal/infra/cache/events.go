package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// webhookイベントIDの重複排除。
// ゲートウェイは積極的に再送してくるので、処理済みイベントはここで落とす。
// キャッシュが無くてもストア側の条件付き更新だけで冪等性は保たれる
type EventCache interface {
	//初見ならtrue。二回目以降はfalse
	MarkOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

type redisEventCache struct {
	client *redis.Client
	prefix string
}

func NewRedisEventCache(addr string) (EventCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisEventCache{
		client: client,
		prefix: "webhook:event",
	}, nil
}

// SetNXで一度だけ取れるフラグを立てる
func (c *redisEventCache) MarkOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:%s", c.prefix, eventID)
	return c.client.SetNX(ctx, key, 1, ttl).Result()
}
