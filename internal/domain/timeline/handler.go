package timeline

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardline/wardline/internal/platform/auth"
	"github.com/wardline/wardline/pkg/apperr"
	"github.com/wardline/wardline/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "charge_nurse"))
	read.GET("/alerts/:id/timeline", h.AlertTimeline)
	read.GET("/timeline", h.RecentEvents)
}

// AlertTimeline returns the full event history for one alert, oldest-first.
func (h *Handler) AlertTimeline(c echo.Context) error {
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	events, err := h.svc.ForAlert(c.Request().Context(), alertID)
	if err != nil {
		return httpError(err)
	}
	if events == nil {
		events = []*Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alert_id": alertID,
		"events":   events,
	})
}

// RecentEvents returns the hospital-wide feed, newest-first, paged.
func (h *Handler) RecentEvents(c echo.Context) error {
	p := pagination.FromContext(c)
	events, total, err := h.svc.Recent(c.Request().Context(), c.QueryParam("event_type"), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if events == nil {
		events = []*Event{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, p.Limit, p.Offset))
}

func httpError(err error) error {
	switch {
	case apperr.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case apperr.IsBackend(err):
		return echo.NewHTTPError(http.StatusBadGateway, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
