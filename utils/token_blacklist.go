package utils

import (
	"sync"
	"time"
)

const blacklistKeyPrefix = "jwt:blacklist:"

// revokedLocal is the in-process fallback used when Redis is down at
// revocation time. It only protects this process, which matches what a
// single-node deployment needs from logout.
var revokedLocal sync.Map // token -> expiry time.Time

// BlacklistToken revokes a token until its natural expiry.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	ctx, cancel := redisCtx()
	defer cancel()
	if err := GetRedis().Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err(); err != nil {
		revokedLocal.Store(token, expiresAt)
	}
}

// IsTokenBlacklisted reports whether a token was revoked. Redis errors
// fail open so a cache outage cannot lock every session out.
func IsTokenBlacklisted(token string) bool {
	if v, ok := revokedLocal.Load(token); ok {
		if time.Now().Before(v.(time.Time)) {
			return true
		}
		revokedLocal.Delete(token)
	}

	ctx, cancel := redisCtx()
	defer cancel()
	n, err := GetRedis().Exists(ctx, blacklistKeyPrefix+token).Result()
	return err == nil && n > 0
}
