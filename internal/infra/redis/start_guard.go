package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StartGuard is a best-effort cross-instance lock built on SET NX. When the lock
// cannot be taken within the wait budget the caller proceeds unguarded and the
// database constraint decides.
type StartGuard struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	log    *zap.Logger
}

func NewStartGuard(client *redis.Client, ttl, wait time.Duration, log *zap.Logger) *StartGuard {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &StartGuard{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond, log: log}
}

func (g *StartGuard) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := g.key(key)
	token := uuid.NewString()
	deadline := time.Now().Add(g.wait)

	for {
		ok, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
		if err != nil {
			g.log.Warn("start guard unavailable, continuing without lock", zap.String("key", key), zap.Error(err))
			return func() {}, nil
		}
		if ok {
			return func() {
				// release must run even if the request context is already cancelled
				if err := releaseScript.Run(context.Background(), g.client, []string{lockKey}, token).Err(); err != nil {
					g.log.Warn("start guard release failed", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			g.log.Warn("start guard wait exceeded, continuing without lock", zap.String("key", key))
			return func() {}, nil
		}

		timer := time.NewTimer(g.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *StartGuard) key(key string) string {
	return "exam:guard:" + key
}
