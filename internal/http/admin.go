package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/paktel/notify-gateway/internal/model"
	"github.com/paktel/notify-gateway/internal/service/admin"
)

func queueMetricsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		buckets, total, err := svc.QueueMetrics(c.Request().Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]any{"buckets": buckets, "total": total})
	}
}

func tenantStatsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := model.TenantStatsQuery{
			Page:    intParam(c, "page"),
			Limit:   intParam(c, "limit"),
			Search:  c.QueryParam("search"),
			SortBy:  c.QueryParam("sort_by"),
			SortDir: c.QueryParam("sort_dir"),
		}
		page, err := svc.TenantStats(c.Request().Context(), q)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, page)
	}
}

func listEventsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f, err := eventFilter(c)
		if err != nil {
			return fail(c, http.StatusBadRequest, CodeValidation, err.Error())
		}
		page, err := svc.ListEvents(c.Request().Context(), f)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, page)
	}
}

func eventDetailHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		detail, err := svc.EventDetail(c.Request().Context(), c.Param("id"))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, detail)
	}
}

func archiveEventsHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f, err := eventFilter(c)
		if err != nil {
			return fail(c, http.StatusBadRequest, CodeValidation, err.Error())
		}
		events, err := svc.ArchiveEvents(c.Request().Context(), f)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]any{"events": events})
	}
}

func workerHealthHandler(svc *admin.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		workers, err := svc.WorkerHealth(c.Request().Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, map[string]any{"workers": workers})
	}
}

func intParam(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func eventFilter(c echo.Context) (model.EventFilter, error) {
	f := model.EventFilter{
		EventTypeCode:  c.QueryParam("event_type"),
		SourceTypeCode: c.QueryParam("source_type"),
		Search:         c.QueryParam("search"),
		Page:           intParam(c, "page"),
		Limit:          intParam(c, "limit"),
		SortBy:         c.QueryParam("sort_by"),
		SortDir:        c.QueryParam("sort_dir"),
	}
	if v := c.QueryParam("tenant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("tenant_id must be an integer")
		}
		f.TenantID = id
	}
	if v := c.QueryParam("status"); v != "" {
		st := model.JobStatus(v)
		if !st.Valid() {
			return f, fmt.Errorf("unknown status %q", v)
		}
		f.Status = st
	}
	if v := c.QueryParam("channel"); v != "" {
		ch, okC := model.ParseChannel(v)
		if !okC {
			return f, fmt.Errorf("unknown channel %q", v)
		}
		f.Channel = ch
	}
	const layout = "2006-01-02"
	if v := c.QueryParam("created_from"); v != "" {
		t, err := time.Parse(layout, v)
		if err != nil {
			return f, fmt.Errorf("created_from must be YYYY-MM-DD")
		}
		f.CreatedFrom = t
	}
	if v := c.QueryParam("created_to"); v != "" {
		t, err := time.Parse(layout, v)
		if err != nil {
			return f, fmt.Errorf("created_to must be YYYY-MM-DD")
		}
		f.CreatedTo = t
	}
	return f, nil
}
