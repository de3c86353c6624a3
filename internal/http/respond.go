package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/paktel/notify-gateway/internal/model"
)

// Error codes carried in the failure envelope.
const (
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidResourceType = "INVALID_RESOURCE_TYPE"
	CodeDuplicate           = "DUPLICATE"
	CodeForbidden           = "FORBIDDEN"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, map[string]any{"success": false, "error": msg, "code": code})
}

// failErr maps the model sentinels onto the envelope; anything
// unrecognized is an opaque 500.
func failErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrValidation):
		return fail(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, model.ErrNotFound):
		return fail(c, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, model.ErrDuplicate):
		return fail(c, http.StatusConflict, CodeDuplicate, err.Error())
	case errors.Is(err, model.ErrConflict):
		return fail(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, model.ErrInsufficientCredits):
		return fail(c, http.StatusPaymentRequired, CodeInsufficientCredits, err.Error())
	default:
		log.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
