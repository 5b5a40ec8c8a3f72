package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter, starting the window on the
// first hit, and returns the count with the remaining window in ms.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter is a fixed-window counter shared by every replica.
type RedisLimiter struct {
	client    redis.Scripter
	policies  Policies
	keyPrefix string
}

// NewRedisLimiter builds a limiter on an existing client.
func NewRedisLimiter(client redis.Scripter, policies Policies) *RedisLimiter {
	return &RedisLimiter{client: client, policies: policies, keyPrefix: "ratelimit"}
}

func (r *RedisLimiter) key(bucket, identifier string) string {
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, bucket, identifier)
}

// CheckLimit counts one hit in the current window.
func (r *RedisLimiter) CheckLimit(ctx context.Context, identifier, bucket string) (Decision, error) {
	policy, err := r.policies.lookup(bucket)
	if err != nil {
		return Decision{}, err
	}
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.key(bucket, identifier)}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis check: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	count, ttl := res[0], res[1]
	if count <= int64(policy.Limit) {
		return Decision{}, nil
	}
	retry := time.Duration(ttl) * time.Millisecond
	if retry <= 0 {
		retry = policy.Window
	}
	return Decision{Limited: true, RetryAfter: retry}, nil
}
