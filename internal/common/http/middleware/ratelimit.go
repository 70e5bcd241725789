package middleware

import (
	"context"
	"fmt"
	"time"

	"codejudge/internal/common/cache"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter enforces fixed-window limits using the shared cache.
type RateLimiter struct {
	cache        cache.Cache
	redisTimeout time.Duration
}

func NewRateLimiter(cacheClient cache.Cache, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &RateLimiter{cache: cacheClient, redisTimeout: redisTimeout}
}

// Allow counts one hit against key and fails with TooManyRequests once max is exceeded within window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 || window <= 0 {
		return nil
	}
	if l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// A key without expiry would block the client forever.
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return appErr.New(appErr.TooManyRequests).WithDetail("retry_after_seconds", int(window.Seconds()))
	}
	return nil
}

// RateLimitPolicy limits requests per client IP on one route.
type RateLimitPolicy struct {
	Window time.Duration `yaml:"window"`
	IPMax  int           `yaml:"ip_max"`
}

// RateLimitMiddleware enforces policy for routeKey. Cache failures let the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.IPMax <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("judge:rate:ip:%s:%s", c.ClientIP(), routeKey)
		err := limiter.Allow(c.Request.Context(), key, policy.IPMax, policy.Window)
		if err != nil && appErr.Is(err, appErr.TooManyRequests) {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}
