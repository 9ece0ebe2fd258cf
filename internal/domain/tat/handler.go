package tat

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/platform/auth"
	"github.com/lims/lims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "lab_tech", "senior_tech", "pathologist", "clinical_reviewer"))
	readGroup.GET("/tat", h.List)
	readGroup.GET("/tat/breaches", h.ListBreached)
	readGroup.GET("/tat/:orderItemId", h.GetByOrderItem)

	refreshGroup := api.Group("", auth.RequireRole("admin", "lab_tech", "senior_tech"))
	refreshGroup.POST("/tat/:orderItemId/refresh", h.Refresh)
}

func (h *Handler) GetByOrderItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("orderItemId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order item id")
	}
	t, err := h.svc.GetByOrderItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no turnaround data for order item")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Refresh(c echo.Context) error {
	id, err := uuid.Parse(c.Param("orderItemId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order item id")
	}
	t, err := h.svc.Refresh(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := c.QueryParam("patient_id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	pid, err := uuid.Parse(patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListBreached(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBreached(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
