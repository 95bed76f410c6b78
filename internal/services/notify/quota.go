package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aethermarket/coordinator/internal/storage"
)

// QuotaLimiter atomically bumps and returns a per-day, per-channel counter.
type QuotaLimiter interface {
	Increment(ctx context.Context, accountID []byte, channel string) (int, error)
}

// RedisQuota is the fast path: INCR+EXPIREAT on a
// quota:{channel}:{account}:{utcdate} key.
type RedisQuota struct {
	client *redis.Client
}

func NewRedisQuota(client *redis.Client) *RedisQuota { return &RedisQuota{client: client} }

func (q *RedisQuota) Increment(ctx context.Context, accountID []byte, channel string) (int, error) {
	key := quotaKey(accountID, channel, time.Now())
	n, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		midnight := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		q.client.ExpireAt(ctx, key, midnight)
	}
	return int(n), nil
}

// PostgresQuota is the fallback used when REDIS_ADDR is unset, mirroring
// the teacher's "absent optional dependency degrades, doesn't fail" idiom.
type PostgresQuota struct {
	store storage.NotifyStore
}

func NewPostgresQuota(store storage.NotifyStore) *PostgresQuota { return &PostgresQuota{store: store} }

func (q *PostgresQuota) Increment(ctx context.Context, accountID []byte, channel string) (int, error) {
	return q.store.IncrementQuota(ctx, accountID, channel, time.Now().UTC())
}

func quotaKey(accountID []byte, channel string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%x:%s", channel, accountID, now.UTC().Format("2006-01-02"))
}
