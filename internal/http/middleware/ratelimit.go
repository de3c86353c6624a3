package middleware

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig configures the Redis-backed fixed-window limiter.
type RateLimitConfig struct {
	Redis          *redis.Client
	DefaultRPS     int           // fallback when the tenant has no explicit limit
	KeyPrefix      string        // e.g. "rl:tenant:"
	Window         time.Duration // usually 1s
	RetryAfterHint bool
}

// RateLimit applies a per-tenant fixed-window RPS limit. It expects
// tenant_id in the echo context (set by APIKey). Redis trouble never
// blocks traffic; the limiter simply lets the request through.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:tenant:"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, ok := TenantFromCtx(c)
			if !ok || tenantID <= 0 {
				return next(c)
			}

			max := cfg.DefaultRPS
			if v, ok := c.Get(ctxTenantRPS).(int); ok && v > 0 {
				max = v
			}
			if max <= 0 || cfg.Redis == nil {
				return next(c)
			}

			// fixed-window key: rl:tenant:{id}:{unix_sec}
			now := time.Now()
			key := cfg.KeyPrefix + strconv.FormatInt(tenantID, 10) + ":" + strconv.FormatInt(now.Unix(), 10)

			pipe := cfg.Redis.Pipeline()
			cnt := pipe.Incr(c.Request().Context(), key)
			pipe.Expire(c.Request().Context(), key, cfg.Window*2)
			if _, err := pipe.Exec(c.Request().Context()); err != nil {
				return next(c)
			}

			if cnt.Val() > int64(max) {
				if cfg.RetryAfterHint {
					remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
					if remain > 0 {
						c.Response().Header().Set("Retry-After", strconv.Itoa(int(remain.Round(time.Second)/time.Second)))
					}
				}
				return c.JSON(http.StatusTooManyRequests,
					map[string]any{"success": false, "error": "rate limited", "code": "RATE_LIMITED"})
			}
			return next(c)
		}
	}
}
