package utils

import (
	"encoding/json"
	"time"
)

const defaultCacheTTL = time.Hour

// The cache holds whole rendered responses. Rendered views embed
// resolved identities and derived floors, so every mutation that can
// change a projection, profile edits included, must invalidate here;
// nothing derived is ever written back to table rows.

// CacheGetBytes fetches a cached response body, treating any Redis
// failure as a miss.
func CacheGetBytes(key string) ([]byte, bool) {
	ctx, cancel := redisCtx()
	defer cancel()
	b, err := GetRedis().Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// CacheSetBytes stores a response body under key.
func CacheSetBytes(key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := redisCtx()
	defer cancel()
	if err := GetRedis().Set(ctx, key, b, ttl).Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache set %s: %v", key, err)
	}
}

// CacheSetJSON marshals v and stores the JSON bytes.
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	if b, err := json.Marshal(v); err == nil {
		CacheSetBytes(key, b, ttl)
	}
}

// InvalidateByPrefix deletes every key under the prefix via SCAN.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	ctx, cancel := redisCtx()
	defer cancel()

	iter := rc.Scan(ctx, 0, prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			rc.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if len(keys) > 0 {
		rc.Del(ctx, keys...)
	}
	if err := iter.Err(); err != nil && Sugar != nil {
		Sugar.Warnf("cache invalidate %s*: %v", prefix, err)
	}
}
