package http

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/paktel/notify-gateway/internal/http/middleware"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/service/queue"
)

// source type codes are lowercase identifiers like "user_invite".
var sourceTypeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

type jobView struct {
	ID             string          `json:"id"`
	Status         model.JobStatus `json:"status"`
	Channel        model.Channel   `json:"channel_code"`
	SourceTypeCode string          `json:"source_type_code"`
	SourceID       string          `json:"source_id"`
	AttemptCount   int             `json:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      string          `json:"created_at"`
	QueuedAt       string          `json:"queued_at,omitempty"`
	ExecutedAt     string          `json:"executed_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
}

func viewOf(j *model.Job) jobView {
	v := jobView{
		ID:             j.ID,
		Status:         j.Status,
		Channel:        j.Channel,
		SourceTypeCode: j.SourceTypeCode,
		SourceID:       j.SourceID,
		AttemptCount:   j.AttemptCount,
		MaxAttempts:    j.MaxAttempts,
		CreatedAt:      j.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if j.ErrorMessage.Valid {
		v.Error = j.ErrorMessage.String
	}
	const layout = "2006-01-02T15:04:05Z"
	if j.QueuedAt.Valid {
		v.QueuedAt = j.QueuedAt.Time.UTC().Format(layout)
	}
	if j.ExecutedAt.Valid {
		v.ExecutedAt = j.ExecutedAt.Time.UTC().Format(layout)
	}
	if j.CompletedAt.Valid {
		v.CompletedAt = j.CompletedAt.Time.UTC().Format(layout)
	}
	return v
}

func createJobHandler(svc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}

		var req queue.CreateJobRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, CodeValidation, "malformed body")
		}
		req.TenantID = tenantID
		req.IsLive = middleware.IsLiveFromCtx(c)

		if req.SourceTypeCode != "" && !sourceTypeRe.MatchString(req.SourceTypeCode) {
			return fail(c, http.StatusBadRequest, CodeInvalidResourceType, "invalid source_type_code")
		}

		job, err := svc.CreateJob(c.Request().Context(), req)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusCreated, viewOf(job))
	}
}

func jobStatusHandler(svc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}

		sourceType := strings.TrimSpace(c.QueryParam("source_type"))
		sourceID := strings.TrimSpace(c.QueryParam("source_id"))
		if sourceType == "" || !sourceTypeRe.MatchString(sourceType) {
			return fail(c, http.StatusBadRequest, CodeInvalidResourceType, "invalid source_type")
		}
		if sourceID == "" {
			return fail(c, http.StatusBadRequest, CodeValidation, "source_id is required")
		}

		job, err := svc.JobStatus(c.Request().Context(), tenantID, sourceType, sourceID, middleware.IsLiveFromCtx(c))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, viewOf(job))
	}
}

func cancelJobHandler(svc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, okT := middleware.TenantFromCtx(c)
		if !okT {
			return fail(c, http.StatusForbidden, CodeForbidden, "no tenant context")
		}
		job, err := svc.Cancel(c.Request().Context(), tenantID, c.Param("id"))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, viewOf(job))
	}
}

// confirmJobHandler is the provider delivery webhook for async
// channels: sent becomes completed.
func confirmJobHandler(svc *queue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.ConfirmDelivery(c.Request().Context(), c.Param("id")); err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]string{"id": c.Param("id"), "status": "completed"})
	}
}
