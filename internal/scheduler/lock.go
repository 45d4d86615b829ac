package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so a run that
// outlived its TTL cannot free a lock another replica has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func lockKey(name string) string {
	return fmt.Sprintf("lock:job:%s", name)
}

// AcquireLock takes a cluster-wide lock for ttl. With no Redis configured every
// caller gets the lock. The returned token is needed to release it.
func AcquireLock(ctx context.Context, rdb *redis.Client, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	if rdb == nil {
		return token, true, nil
	}

	wasSet, err := rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock in redis: %w", err)
	}
	return token, wasSet, nil
}

func ReleaseLock(ctx context.Context, rdb *redis.Client, name, token string) error {
	if rdb == nil {
		return nil
	}
	return releaseScript.Run(ctx, rdb, []string{lockKey(name)}, token).Err()
}
