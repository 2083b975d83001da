package alert

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
	staff := auth.RequireRole("admin", "physician", "nurse", "charge_nurse")

	read := api.Group("", staff)
	read.GET("/alerts", h.ListAlerts)
	read.GET("/alerts/:id", h.GetAlert)
	read.GET("/alerts/:id/escalations", h.ListEscalations)
	read.GET("/alerts/:id/acknowledgments", h.ListAcknowledgments)

	write := api.Group("", staff)
	write.POST("/alerts", h.CreateAlert)
	write.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
	write.POST("/alerts/:id/resolve", h.ResolveAlert)
	write.POST("/alerts/:id/reopen", h.ReopenAlert)

	ops := api.Group("", auth.RequireRole("admin"))
	ops.GET("/ops/failed-transitions", h.FailedTransitions)
}

func (h *Handler) CreateAlert(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateAlert(c.Request().Context(), in, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{
		Status:     Status(c.QueryParam("status")),
		Department: c.QueryParam("department"),
		AlertType:  Type(c.QueryParam("alert_type")),
	}
	items, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Alert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) AcknowledgeAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in AckInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Acknowledge(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return transitionError(err, a)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ResolveAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Resolve(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return transitionError(err, a)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ReopenAlert(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Reopen(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return transitionError(err, a)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListEscalations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Escalations(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*EscalationRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alert_id": id, "escalations": items})
}

func (h *Handler) ListAcknowledgments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Acknowledgments(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Acknowledgment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alert_id": id, "acknowledgments": items})
}

func (h *Handler) FailedTransitions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"failed_transitions": h.svc.FailedTransitions(),
	})
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	return id, nil
}

// transitionError carries the alert's actual status back on a rejected
// command so the caller can re-read and decide.
func transitionError(err error, a *Alert) error {
	if errors.Is(err, apperr.ErrInvalidTransition) && a != nil {
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":          err.Error(),
			"current_status": a.Status,
		})
	}
	return httpError(err)
}

func httpError(err error) error {
	switch {
	case apperr.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case apperr.IsBackend(err):
		return echo.NewHTTPError(http.StatusBadGateway, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
