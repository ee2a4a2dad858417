package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const lockPrefix = "trip-scraper:lock:"

// Locker is a single-instance Redis lock keyed by scrape URL.
type Locker struct {
	rdb goredis.Cmdable
}

func NewLocker(rdb goredis.Cmdable) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock takes key for ttl. ok is false when another holder has it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to take lock %s: %w", key, err)
	}

	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{lockPrefix + key}, token).Err()
	}

	return release, true, nil
}
