package handover

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardline/wardline/internal/platform/auth"
	"github.com/wardline/wardline/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole("admin", "physician", "nurse", "charge_nurse")

	g := api.Group("", staff)
	g.POST("/shift-logs", h.StartShift)
	g.POST("/shift-logs/:id/close", h.CloseShift)
	g.POST("/handovers", h.InitiateHandover)
	g.GET("/handovers/:id", h.GetHandover)
	g.POST("/handovers/:id/accept", h.AcceptHandover)
	g.POST("/handovers/:id/decline", h.DeclineHandover)
}

func (h *Handler) StartShift(c echo.Context) error {
	var in struct {
		HospitalID string `json:"hospital_id"`
		Department string `json:"department"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sl, err := h.svc.StartShift(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in.HospitalID, in.Department)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sl)
}

func (h *Handler) CloseShift(c echo.Context) error {
	id, err := parseID(c, "invalid shift log id")
	if err != nil {
		return err
	}
	sl, err := h.svc.CloseShift(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sl)
}

func (h *Handler) InitiateHandover(c echo.Context) error {
	var in InitiateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hd, err := h.svc.Initiate(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, hd)
}

func (h *Handler) GetHandover(c echo.Context) error {
	id, err := parseID(c, "invalid handover id")
	if err != nil {
		return err
	}
	hd, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hd)
}

func (h *Handler) AcceptHandover(c echo.Context) error {
	id, err := parseID(c, "invalid handover id")
	if err != nil {
		return err
	}
	var in struct {
		AcknowledgmentNotes string `json:"acknowledgment_notes"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hd, err := h.svc.Accept(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()), in.AcknowledgmentNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hd)
}

func (h *Handler) DeclineHandover(c echo.Context) error {
	id, err := parseID(c, "invalid handover id")
	if err != nil {
		return err
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hd, err := h.svc.Decline(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()), in.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, hd)
}

func parseID(c echo.Context, msg string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, msg)
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case apperr.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "an outstanding handover already exists for this shift log")
	case errors.Is(err, apperr.ErrExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, apperr.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case apperr.IsBackend(err):
		return echo.NewHTTPError(http.StatusBadGateway, "storage unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
