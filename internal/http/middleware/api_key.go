package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/paktel/notify-gateway/internal/repository"
)

const (
	ctxTenantID  = "tenant_id"
	ctxTenantRPS = "tenant_rps"
	ctxIsAdmin   = "tenant_is_admin"
	ctxIsLive    = "tenant_is_live"
)

// TenantFromCtx extracts the authenticated tenant id set by APIKey.
func TenantFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxTenantID).(int64)
	return id, ok
}

// IsLiveFromCtx reports which credit environment the key addresses.
// Test keys (prefix "test_") hit the test balance and test jobs.
func IsLiveFromCtx(c echo.Context) bool {
	live, ok := c.Get(ctxIsLive).(bool)
	return !ok || live
}

func isAdmin(c echo.Context) bool {
	admin, ok := c.Get(ctxIsAdmin).(bool)
	return ok && admin
}

// APIKey authenticates requests by the X-API-Key header and stores the
// tenant's id, admin flag, environment and rate limit in the context.
func APIKey(tenants repository.TenantsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized,
					map[string]any{"success": false, "error": "missing api key", "code": "FORBIDDEN"})
			}
			t, err := tenants.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError,
					map[string]any{"success": false, "error": "auth error", "code": "INTERNAL"})
			}
			if t == nil || t.Status != "active" {
				return c.JSON(http.StatusUnauthorized,
					map[string]any{"success": false, "error": "invalid api key", "code": "FORBIDDEN"})
			}
			c.Set(ctxTenantID, t.ID)
			c.Set(ctxIsAdmin, t.IsAdmin)
			c.Set(ctxIsLive, !strings.HasPrefix(key, "test_"))
			if t.RateLimitRPS != nil {
				c.Set(ctxTenantRPS, *t.RateLimitRPS)
			}
			return next(c)
		}
	}
}

// AdminOnly rejects tenants without the admin flag.
func AdminOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isAdmin(c) {
				return c.JSON(http.StatusForbidden,
					map[string]any{"success": false, "error": "admin access required", "code": "FORBIDDEN"})
			}
			return next(c)
		}
	}
}
