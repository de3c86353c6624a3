package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/paktel/notify-gateway/internal/http/middleware"
	"github.com/paktel/notify-gateway/internal/release"
	"github.com/paktel/notify-gateway/internal/repository"
)

type topupRequest struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"`
}

func topupHandler(admit *repository.AdmitRepository, credits repository.CreditsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}

		var req topupRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, CodeValidation, "malformed body")
		}
		if req.Amount <= 0 {
			return fail(c, http.StatusBadRequest, CodeValidation, "amount must be positive")
		}
		if strings.TrimSpace(req.RequestID) == "" {
			return fail(c, http.StatusBadRequest, CodeValidation, "request_id is required")
		}

		isLive := middleware.IsLiveFromCtx(c)
		applied, err := admit.TopupAccount(c.Request().Context(), tenantID, isLive, req.Amount, req.RequestID)
		if err != nil {
			return failErr(c, err)
		}

		balance, err := credits.Balance(c.Request().Context(), tenantID, isLive)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]any{
			"balance":         balance,
			"already_applied": applied,
		})
	}
}

func waitingHandler(sched *release.Scheduler, credits repository.CreditsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}

		channel := c.QueryParam("channel")
		count, err := sched.WaitingCount(c.Request().Context(), tenantID, channel)
		if err != nil {
			return failErr(c, err)
		}
		balance, err := credits.Balance(c.Request().Context(), tenantID, middleware.IsLiveFromCtx(c))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]any{
			"waiting_count": count,
			"balance":       balance,
		})
	}
}

// releaseHandler triggers a manual release pass, the usual follow-up to
// a topup.
func releaseHandler(sched *release.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}

		channel := c.QueryParam("channel")
		max := 0
		if v := c.QueryParam("max"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fail(c, http.StatusBadRequest, CodeValidation, "max must be a non-negative integer")
			}
			max = n
		}

		res, err := sched.Release(c.Request().Context(), tenantID, channel, max)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, res)
	}
}
