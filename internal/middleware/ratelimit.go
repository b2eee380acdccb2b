package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit returns a fixed-window per-caller limiter backed by redis, used
// on the bid and buy routes to blunt request floods. The key is the
// authenticated user when present, the client IP otherwise. If redis is
// unavailable the limiter fails open; traffic shaping is not worth failing
// marketplace operations over.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) echo.MiddlewareFunc {
	if rdb == nil || limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			who := c.RealIP()
			if uid, ok := c.Get("user_id").(string); ok && uid != "" {
				who = uid
			}
			key := fmt.Sprintf("ratelimit:%s:%s:%d", who, c.Path(), time.Now().Unix()/int64(window.Seconds()))

			ctx := c.Request().Context()
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				zap.L().Warn("rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if n == 1 {
				rdb.Expire(ctx, key, window)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			remaining := int64(limit) - n
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(limit) {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
