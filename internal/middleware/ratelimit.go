package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window limiter backed by Redis. A Redis outage fails
// open; rate limiting is protection, not a dependency.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
	log    *zap.SugaredLogger
}

// NewRateLimiter constructs a RateLimiter. A nil client disables limiting.
func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{redis: r, prefix: prefix, limit: limit, window: window, log: log}
}

// ByUser limits per authenticated user. Must run after Auth.
func (r *RateLimiter) ByUser() gin.HandlerFunc {
	return r.byKey(func(c *gin.Context) string {
		return strconv.Itoa(UserID(c))
	})
}

func (r *RateLimiter) byKey(keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.redis == nil {
			c.Next()
			return
		}

		redisKey := fmt.Sprintf("%s:%s", r.prefix, keyFunc(c))
		count, err := r.redis.Incr(c.Request.Context(), redisKey).Result()
		if err != nil {
			r.log.Warnw("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			r.redis.Expire(c.Request.Context(), redisKey, r.window)
		}
		if count > int64(r.limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
