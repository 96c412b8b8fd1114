package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter caps state-changing market calls per caller per minute using a
// Redis counter.
type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	logger *zap.Logger
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int, logger *zap.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, limit: int64(perMinute), logger: logger}
}

// Allow counts one request for identity and reports whether it is within the
// limit. Redis errors are returned with allowed=true.
func (r *RateLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", identity)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, time.Minute).Err(); err != nil {
			return true, err
		}
	}
	return count <= r.limit, nil
}

// Limit is a request middleware for market write routes.
func (r *RateLimiter) Limit(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return e.JSON(http.StatusForbidden, map[string]string{
			"error": "Access denied",
		})
	}

	identity := "ip:" + e.RealIP()
	if e.Auth != nil {
		identity = "user:" + e.Auth.Id
	}

	allowed, err := r.Allow(e.Request.Context(), identity)
	if err != nil {
		r.logger.Warn("rate limiter unavailable", zap.String("identity", identity), zap.Error(err))
	}
	if !allowed {
		return e.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Too many requests",
		})
	}

	return e.Next()
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
