package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// appendScript appends ARGV[1] to the list unless present and extends the TTL
// to at least ARGV[2] milliseconds. Returns 1 when the member was added.
var appendScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
local found = false
for _, v in ipairs(items) do
  if v == ARGV[1] then
    found = true
    break
  end
end
if not found then
  redis.call('RPUSH', KEYS[1], ARGV[1])
end
local want = tonumber(ARGV[2])
if want > 0 then
  local cur = redis.call('PTTL', KEYS[1])
  if #items == 0 or (cur >= 0 and cur < want) then
    redis.call('PEXPIRE', KEYS[1], want)
  end
end
if found then
  return 0
end
return 1
`)

type RedisCacheKeyRegistry struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCacheKeyRegistry(client redis.UniversalClient, prefix string) *RedisCacheKeyRegistry {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisCacheKeyRegistry{client: client, prefix: prefix}
}

func (r *RedisCacheKeyRegistry) Add(ctx context.Context, pattern, key string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	return appendScript.Run(ctx, r.client, []string{r.listKey(pattern)}, key, ttl.Milliseconds()).Err()
}

func (r *RedisCacheKeyRegistry) Members(ctx context.Context, pattern string) ([]string, error) {
	if r.client == nil {
		return nil, nil
	}
	keys, err := r.client.LRange(ctx, r.listKey(pattern), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return keys, err
}

func (r *RedisCacheKeyRegistry) Remove(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.listKey(pattern)).Err()
}

func (r *RedisCacheKeyRegistry) listKey(pattern string) string {
	return r.prefix + ":" + registryKey(pattern)
}
